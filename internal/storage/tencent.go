package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/weiwangfds/docfiler/internal/database"
)

// TencentDriver 腾讯云COS存储驱动
type TencentDriver struct {
	client *cos.Client
	config *database.StorageConfig
	prefix string
	host   string
}

// NewTencentDriver 创建腾讯云COS存储驱动实例
func NewTencentDriver(config *database.StorageConfig) (*TencentDriver, error) {
	host := fmt.Sprintf("%s.cos.%s.myqcloud.com", config.StoreID, config.Region)
	bucketURL := "https://" + host
	if config.Endpoint != "" {
		bucketURL = config.Endpoint
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, NewError(KindInternal, "init", BackendTencent, "", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  config.AccessKey,
			SecretKey: config.SecretKey,
		},
	})

	return &TencentDriver{
		client: client,
		config: config,
		prefix: NormalizePath(config.Prefix),
		host:   u.Host,
	}, nil
}

func (d *TencentDriver) Backend() string {
	return BackendTencent
}

func (d *TencentDriver) StoreID() string {
	return d.config.StoreID
}

func (d *TencentDriver) key(relPath string) string {
	relPath = NormalizePath(relPath)
	if d.prefix == "" {
		return relPath
	}
	if relPath == "" {
		return d.prefix
	}
	return d.prefix + "/" + relPath
}

func (d *TencentDriver) rel(key string) string {
	if d.prefix != "" {
		key = strings.TrimPrefix(key, d.prefix+"/")
	}
	return NormalizePath(key)
}

func (d *TencentDriver) dirKey(dir string) string {
	key := d.key(dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

// ListFiles 列出指定目录下的文件
func (d *TencentDriver) ListFiles(dir string, recursive bool, exts []string) ([]FileInfo, error) {
	options := &cos.BucketGetOptions{
		Prefix:  d.dirKey(dir),
		MaxKeys: 1000,
	}
	if !recursive {
		options.Delimiter = "/"
	}

	var files []FileInfo
	for {
		result, _, err := d.client.Bucket.Get(context.Background(), options)
		if err != nil {
			return nil, mapTencentError("list", dir, err)
		}
		for _, object := range result.Contents {
			if strings.HasSuffix(object.Key, "/") {
				continue
			}
			if !matchExt(object.Key, exts) {
				continue
			}
			files = append(files, FileInfo{
				Path:         d.rel(object.Key),
				Name:         path.Base(object.Key),
				Size:         int64(object.Size),
				LastModified: object.LastModified,
				ETag:         strings.Trim(object.ETag, "\""),
			})
		}
		if !result.IsTruncated {
			break
		}
		options.Marker = result.NextMarker
	}
	return files, nil
}

// ListFolders 列出指定目录下的直接子目录名
func (d *TencentDriver) ListFolders(dir string) ([]string, error) {
	options := &cos.BucketGetOptions{
		Prefix:    d.dirKey(dir),
		Delimiter: "/",
		MaxKeys:   1000,
	}

	var folders []string
	for {
		result, _, err := d.client.Bucket.Get(context.Background(), options)
		if err != nil {
			return nil, mapTencentError("list_folders", dir, err)
		}
		for _, cp := range result.CommonPrefixes {
			folders = append(folders, path.Base(strings.TrimSuffix(cp, "/")))
		}
		if !result.IsTruncated {
			break
		}
		options.Marker = result.NextMarker
	}
	return folders, nil
}

// ReadFile 读取文件全部内容
func (d *TencentDriver) ReadFile(relPath string) ([]byte, error) {
	resp, err := d.client.Object.Get(context.Background(), d.key(relPath), nil)
	if err != nil {
		return nil, mapTencentError("read", relPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindTransient, "read", BackendTencent, relPath, err)
	}
	return data, nil
}

// WriteFile 写入文件
func (d *TencentDriver) WriteFile(relPath string, data []byte) error {
	_, err := d.client.Object.Put(context.Background(), d.key(relPath), bytes.NewReader(data), nil)
	if err != nil {
		return mapTencentError("write", relPath, err)
	}
	return nil
}

// Move 将文件移动到目标目录，拷贝后删除
func (d *TencentDriver) Move(src string, destFolder string) (string, error) {
	newRel := NormalizePath(path.Join(NormalizePath(destFolder), path.Base(NormalizePath(src))))
	sourceURL := d.host + "/" + d.key(src)
	if _, _, err := d.client.Object.Copy(context.Background(), d.key(newRel), sourceURL, nil); err != nil {
		return "", mapTencentError("move", src, err)
	}
	if _, err := d.client.Object.Delete(context.Background(), d.key(src)); err != nil {
		return "", mapTencentError("move", src, err)
	}
	return newRel, nil
}

// Delete 删除文件
func (d *TencentDriver) Delete(relPath string) error {
	if _, err := d.client.Object.Delete(context.Background(), d.key(relPath)); err != nil {
		return mapTencentError("delete", relPath, err)
	}
	return nil
}

// FileExists 检查文件是否存在
func (d *TencentDriver) FileExists(relPath string) (bool, error) {
	_, err := d.client.Object.Head(context.Background(), d.key(relPath), nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return false, nil
		}
		return false, mapTencentError("stat", relPath, err)
	}
	return true, nil
}

// DisplayPath 返回面向用户的可读路径表示
func (d *TencentDriver) DisplayPath(relPath string) string {
	return "cos://" + d.config.StoreID + "/" + d.key(relPath)
}

// TestConnection 测试连接
func (d *TencentDriver) TestConnection() error {
	if _, err := d.client.Bucket.Head(context.Background()); err != nil {
		return mapTencentError("test", "", err)
	}
	return nil
}

// mapTencentError 将COS错误映射为存储错误类别
func mapTencentError(op, relPath string, err error) *StorageError {
	kind := KindTransient
	if cos.IsNotFoundError(err) {
		kind = KindNotFound
	} else {
		var respErr *cos.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil {
			switch {
			case respErr.Response.StatusCode == 403:
				kind = KindPermissionDenied
			case respErr.Response.StatusCode == 409:
				kind = KindConflict
			case respErr.Response.StatusCode >= 400 && respErr.Response.StatusCode < 500:
				kind = KindInternal
			}
		}
	}
	return NewError(kind, op, BackendTencent, relPath, err)
}
