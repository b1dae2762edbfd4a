// Пакет archive — архив исходных SOH-файлов в S3-совместимом хранилище.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config — параметры подключения к бакету.
type Config struct {
	Bucket string
	Region string
	// Endpoint — адрес S3-совместимого сервиса (MinIO и т.п.), пусто — AWS
	Endpoint  string
	AccessKey string
	SecretKey string
}

// objectAPI — используемое подмножество s3.Client.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Archiver сохраняет и удаляет объекты в одном бакете.
type S3Archiver struct {
	client objectAPI
	bucket string
	logger *slog.Logger
}

// NewS3 создаёт архиватор со статическими ключами доступа.
func NewS3(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Archiver, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(creds),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("Архив SOH-файлов включён",
		slog.String("bucket", cfg.Bucket),
		slog.String("region", cfg.Region),
		slog.String("endpoint", cfg.Endpoint),
	)
	return newWithClient(client, cfg.Bucket, logger), nil
}

func newWithClient(client objectAPI, bucket string, logger *slog.Logger) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		logger: logger.With(slog.String("component", "archive")),
	}
}

// Put сохраняет содержимое файла под ключом key.
func (a *S3Archiver) Put(ctx context.Context, key, contentType string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("сохранение %s в архив: %w", key, err)
	}
	a.logger.Debug("Файл сохранён в архив", slog.String("key", key), slog.Int("size", len(data)))
	return nil
}

// Delete удаляет объект. Отсутствующий объект ошибкой не считается.
func (a *S3Archiver) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("удаление %s из архива: %w", key, err)
	}
	return nil
}

// Key строит ключ объекта: soh/<project>/<reference>/<имя файла>.
func Key(projectID, referenceID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join("soh", projectID, referenceID, name)
}
