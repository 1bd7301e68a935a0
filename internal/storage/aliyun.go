package storage

import (
	"bytes"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/weiwangfds/docfiler/internal/database"
)

// AliyunDriver 阿里云OSS存储驱动
type AliyunDriver struct {
	client *oss.Client
	bucket *oss.Bucket
	config *database.StorageConfig
	prefix string
}

// NewAliyunDriver 创建阿里云OSS存储驱动实例
func NewAliyunDriver(config *database.StorageConfig) (*AliyunDriver, error) {
	// 构建endpoint
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "https://oss-" + config.Region + ".aliyuncs.com"
	}

	// 创建OSS客户端
	client, err := oss.New(endpoint, config.AccessKey, config.SecretKey)
	if err != nil {
		return nil, NewError(KindInternal, "init", BackendAliyun, "", err)
	}

	// 获取存储桶
	bucket, err := client.Bucket(config.StoreID)
	if err != nil {
		return nil, mapAliyunError("init", "", err)
	}

	return &AliyunDriver{
		client: client,
		bucket: bucket,
		config: config,
		prefix: NormalizePath(config.Prefix),
	}, nil
}

// Backend 返回后端类型标识
func (d *AliyunDriver) Backend() string {
	return BackendAliyun
}

// StoreID 返回存储桶名称
func (d *AliyunDriver) StoreID() string {
	return d.config.StoreID
}

// key 将存储内相对路径转换为对象键
func (d *AliyunDriver) key(relPath string) string {
	relPath = NormalizePath(relPath)
	if d.prefix == "" {
		return relPath
	}
	if relPath == "" {
		return d.prefix
	}
	return d.prefix + "/" + relPath
}

// rel 将对象键还原为存储内相对路径
func (d *AliyunDriver) rel(key string) string {
	if d.prefix != "" {
		key = strings.TrimPrefix(key, d.prefix+"/")
	}
	return NormalizePath(key)
}

// dirKey 目录对象键前缀，以斜杠结尾
func (d *AliyunDriver) dirKey(dir string) string {
	key := d.key(dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

// ListFiles 列出指定目录下的文件
func (d *AliyunDriver) ListFiles(dir string, recursive bool, exts []string) ([]FileInfo, error) {
	options := []oss.Option{
		oss.Prefix(d.dirKey(dir)),
		oss.MaxKeys(1000),
	}
	if !recursive {
		options = append(options, oss.Delimiter("/"))
	}

	var files []FileInfo
	marker := ""
	for {
		lsRes, err := d.bucket.ListObjects(append(options, oss.Marker(marker))...)
		if err != nil {
			return nil, mapAliyunError("list", dir, err)
		}
		for _, object := range lsRes.Objects {
			if strings.HasSuffix(object.Key, "/") {
				continue
			}
			if !matchExt(object.Key, exts) {
				continue
			}
			files = append(files, FileInfo{
				Path:         d.rel(object.Key),
				Name:         path.Base(object.Key),
				Size:         object.Size,
				LastModified: object.LastModified.Format(time.RFC3339),
				ETag:         strings.Trim(object.ETag, "\""),
			})
		}
		if !lsRes.IsTruncated {
			break
		}
		marker = lsRes.NextMarker
	}
	return files, nil
}

// ListFolders 列出指定目录下的直接子目录名
func (d *AliyunDriver) ListFolders(dir string) ([]string, error) {
	prefix := d.dirKey(dir)
	var folders []string
	marker := ""
	for {
		lsRes, err := d.bucket.ListObjects(
			oss.Prefix(prefix),
			oss.Delimiter("/"),
			oss.MaxKeys(1000),
			oss.Marker(marker),
		)
		if err != nil {
			return nil, mapAliyunError("list_folders", dir, err)
		}
		for _, cp := range lsRes.CommonPrefixes {
			folders = append(folders, path.Base(strings.TrimSuffix(cp, "/")))
		}
		if !lsRes.IsTruncated {
			break
		}
		marker = lsRes.NextMarker
	}
	return folders, nil
}

// ReadFile 读取文件全部内容
func (d *AliyunDriver) ReadFile(relPath string) ([]byte, error) {
	body, err := d.bucket.GetObject(d.key(relPath))
	if err != nil {
		return nil, mapAliyunError("read", relPath, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, NewError(KindTransient, "read", BackendAliyun, relPath, err)
	}
	return data, nil
}

// WriteFile 写入文件
func (d *AliyunDriver) WriteFile(relPath string, data []byte) error {
	if err := d.bucket.PutObject(d.key(relPath), bytes.NewReader(data)); err != nil {
		return mapAliyunError("write", relPath, err)
	}
	return nil
}

// Move 将文件移动到目标目录，保持文件名不变
// OSS无原生移动操作，采用拷贝后删除
func (d *AliyunDriver) Move(src string, destFolder string) (string, error) {
	newRel := NormalizePath(path.Join(NormalizePath(destFolder), path.Base(NormalizePath(src))))
	if _, err := d.bucket.CopyObject(d.key(src), d.key(newRel)); err != nil {
		return "", mapAliyunError("move", src, err)
	}
	if err := d.bucket.DeleteObject(d.key(src)); err != nil {
		return "", mapAliyunError("move", src, err)
	}
	return newRel, nil
}

// Delete 删除文件
func (d *AliyunDriver) Delete(relPath string) error {
	if err := d.bucket.DeleteObject(d.key(relPath)); err != nil {
		return mapAliyunError("delete", relPath, err)
	}
	return nil
}

// FileExists 检查文件是否存在
func (d *AliyunDriver) FileExists(relPath string) (bool, error) {
	exists, err := d.bucket.IsObjectExist(d.key(relPath))
	if err != nil {
		return false, mapAliyunError("stat", relPath, err)
	}
	return exists, nil
}

// DisplayPath 返回面向用户的可读路径表示
func (d *AliyunDriver) DisplayPath(relPath string) string {
	return "oss://" + d.config.StoreID + "/" + d.key(relPath)
}

// TestConnection 测试连接
func (d *AliyunDriver) TestConnection() error {
	if _, err := d.client.GetBucketInfo(d.config.StoreID); err != nil {
		return mapAliyunError("test", "", err)
	}
	return nil
}

// mapAliyunError 将OSS服务错误映射为存储错误类别
func mapAliyunError(op, relPath string, err error) *StorageError {
	kind := KindTransient
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		switch {
		case svcErr.StatusCode == 404:
			kind = KindNotFound
		case svcErr.StatusCode == 403:
			kind = KindPermissionDenied
		case svcErr.StatusCode == 409:
			kind = KindConflict
		case svcErr.StatusCode >= 400 && svcErr.StatusCode < 500:
			kind = KindInternal
		}
	}
	return NewError(kind, op, BackendAliyun, relPath, err)
}
