package config

import (
	"sync"
)

var (
	minioOnce   sync.Once
	minioConfig *MinioConfig
)

type MinioConfig struct {
	AccessKey  string
	SecretKey  string
	Endpoint   string
	UseSSL     bool
	Region     string
	BucketName string
	// PublicURL is the base used to build browser-facing object URLs.
	// Defaults to the endpoint.
	PublicURL string
}

// Enabled reports whether enough is configured to attempt a connection.
func (c *MinioConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != ""
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		loadEnv()

		minioConfig = &MinioConfig{
			AccessKey:  getString("MINIO_ACCESS_KEY", ""),
			SecretKey:  getString("MINIO_SECRET_KEY", ""),
			Endpoint:   getString("MINIO_ENDPOINT", ""),
			UseSSL:     getBool("MINIO_USE_SSL", false),
			Region:     getString("MINIO_REGION", "us-east-1"),
			BucketName: getString("MINIO_BUCKET_NAME", "catalog-images"),
			PublicURL:  getString("MINIO_PUBLIC_URL", ""),
		}
	})
	return minioConfig
}
