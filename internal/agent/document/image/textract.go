package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/disintegration/imaging"

	"github.com/feichai0017/catalog-ingestor/config"
	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

// textractAPI is the part of the Textract client the recognizer calls.
type textractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractRecognizer sends page images to AWS Textract.
type TextractRecognizer struct {
	client        textractAPI
	minConfidence float32
	logger        logger.Logger
}

func NewTextractRecognizer(ctx context.Context, cfg *config.TextractConfig, log logger.Logger) (*TextractRecognizer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return newTextractRecognizer(textract.NewFromConfig(awsCfg), cfg.MinConfidence, log), nil
}

func newTextractRecognizer(client textractAPI, minConfidence float32, log logger.Logger) *TextractRecognizer {
	return &TextractRecognizer{
		client:        client,
		minConfidence: minConfidence,
		logger:        log.Named("textract"),
	}
}

func (r *TextractRecognizer) Name() string {
	return "textract"
}

func (r *TextractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	result, err := r.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: buf.Bytes()},
	})
	if err != nil {
		return "", fmt.Errorf("failed to detect document text: %w", err)
	}

	return strings.Join(r.lines(result.Blocks), "\n"), nil
}

// lines keeps LINE blocks at or above the confidence floor, in reading order.
func (r *TextractRecognizer) lines(blocks []types.Block) []string {
	var texts []string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < r.minConfidence {
			continue
		}
		texts = append(texts, aws.ToString(block.Text))
	}
	return texts
}
