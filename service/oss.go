package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage MinIO 对象存储客户端，由 main 显式构造并注入
type ObjectStorage struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewObjectStorage(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ObjectStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化失败: %w", err)
	}
	return &ObjectStorage{
		client: client,
		bucket: bucket,
		expiry: 72 * time.Hour,
	}, nil
}

// Put 上传对象并返回预签名访问 URL。size 为 -1 表示大小未知。
func (o *ObjectStorage) Put(ctx context.Context, objectName string, r io.Reader, size int64) (string, error) {
	exists, err := o.client.BucketExists(ctx, o.bucket)
	if err != nil {
		return "", fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := o.client.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		log.Printf("Bucket '%s' 已创建", o.bucket)
	}

	_, err = o.client.PutObject(ctx, o.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: ContentTypeByExt(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("上传到 MinIO 失败: %w", err)
	}

	presignedURL, err := o.client.PresignedGetObject(ctx, o.bucket, objectName, o.expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}

	log.Printf("文件已上传: %s", objectName)
	return presignedURL.String(), nil
}

// ContentTypeByExt 按文件扩展名推断 Content-Type
func ContentTypeByExt(name string) string {
	switch filepath.Ext(name) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
