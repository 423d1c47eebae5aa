// Package storage archivo de XML autorizados en S3 o compatibles (MinIO, etc.).
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/pkg/config"
)

var _ billing.XMLArchiver = (*S3Archiver)(nil)

// ObjectPutter la parte del cliente S3 que usa el archivador.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver guarda cada XML autorizado en {prefix}/{CNPJ}/{AAMM}/{chave}-nfe.xml.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Archiver con un cliente ya construido (tests, clientes compartidos).
func NewS3Archiver(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3ArchiverFromConfig construye el cliente con credenciales estáticas o,
// si no hay, con la cadena por defecto del SDK.
func NewS3ArchiverFromConfig(ctx context.Context, cfg config.StorageConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket requerido")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: configuración AWS: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3Archiver(client, cfg.Bucket, "nfe"), nil
}

// Archive sube el XML. La clave de acceso define la ruta del objeto.
func (a *S3Archiver) Archive(ctx context.Context, accessKey, xml string) error {
	objectKey, err := a.ObjectKey(accessKey)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(xml),
		ContentType: aws.String("application/xml"),
		Metadata:    map[string]string{"access-key": accessKey},
	})
	if err != nil {
		return fmt.Errorf("storage: subir %s: %w", objectKey, err)
	}
	return nil
}

// ObjectKey ruta del objeto para una clave de acceso válida.
func (a *S3Archiver) ObjectKey(accessKey string) (string, error) {
	parts, err := nfe.ParseAccessKey(accessKey)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s/%s/%s-nfe.xml", parts.CNPJ, parts.YearMonth, accessKey)
	if a.prefix != "" {
		path = a.prefix + "/" + path
	}
	return path, nil
}
