package image

import (
	"context"
	"errors"
	stdimage "image"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/catalog-ingestor/pkg/logger"
)

type fakeTextract struct {
	out   *textract.DetectDocumentTextOutput
	err   error
	bytes int
}

func (f *fakeTextract) DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.bytes = len(params.Document.Bytes)
	return f.out, f.err
}

func TestTextractRecognizer_FiltersLines(t *testing.T) {
	client := &fakeTextract{out: &textract.DetectDocumentTextOutput{
		Blocks: []types.Block{
			{BlockType: types.BlockTypePage},
			{BlockType: types.BlockTypeLine, Text: aws.String("Modern Oak Table"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeWord, Text: aws.String("Modern"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeLine, Text: aws.String("smudge"), Confidence: aws.Float32(20)},
			{BlockType: types.BlockTypeLine, Text: aws.String("$899.99"), Confidence: aws.Float32(91)},
		},
	}}
	r := newTextractRecognizer(client, 80, logger.NewTestLogger())

	text, err := r.Recognize(context.Background(), stdimage.NewGray(stdimage.Rect(0, 0, 4, 4)))
	require.NoError(t, err)

	assert.Equal(t, "Modern Oak Table\n$899.99", text)
	assert.Positive(t, client.bytes)
}

func TestTextractRecognizer_Error(t *testing.T) {
	r := newTextractRecognizer(&fakeTextract{err: errors.New("throttled")}, 80, logger.NewTestLogger())
	_, err := r.Recognize(context.Background(), stdimage.NewGray(stdimage.Rect(0, 0, 4, 4)))
	assert.ErrorContains(t, err, "throttled")
}

func TestPreprocess(t *testing.T) {
	src := stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8))

	out, err := Preprocess(src, DefaultPreprocessors())
	require.NoError(t, err)
	assert.Equal(t, src.Bounds().Size(), out.Bounds().Size())

	_, err = Preprocess(nil, DefaultPreprocessors())
	assert.Error(t, err)

	failing := PreprocessFunc(func(stdimage.Image) (stdimage.Image, error) {
		return nil, errors.New("boom")
	})
	_, err = Preprocess(src, []Preprocessor{failing})
	assert.ErrorContains(t, err, "boom")
}
