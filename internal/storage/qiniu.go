package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth/qbox"
	qiniustorage "github.com/qiniu/go-sdk/v7/storage"

	"github.com/weiwangfds/docfiler/internal/database"
)

// QiniuDriver 七牛云Kodo存储驱动
type QiniuDriver struct {
	mac          *qbox.Mac
	bucketName   string
	bucketDomain string
	region       *qiniustorage.Region
	config       *database.StorageConfig
	prefix       string
}

// NewQiniuDriver 创建七牛云Kodo存储驱动实例
func NewQiniuDriver(config *database.StorageConfig) (*QiniuDriver, error) {
	mac := qbox.NewMac(config.AccessKey, config.SecretKey)

	// 获取区域信息
	region, err := qiniustorage.GetRegion(config.AccessKey, config.StoreID)
	if err != nil {
		return nil, NewError(KindTransient, "init", BackendQiniu, "", err)
	}

	// 构建域名
	bucketDomain := config.Endpoint
	if bucketDomain == "" {
		bucketDomain = fmt.Sprintf("%s.%s", config.StoreID, region.RsHost)
	}

	return &QiniuDriver{
		mac:          mac,
		bucketName:   config.StoreID,
		bucketDomain: bucketDomain,
		region:       region,
		config:       config,
		prefix:       NormalizePath(config.Prefix),
	}, nil
}

func (d *QiniuDriver) Backend() string {
	return BackendQiniu
}

func (d *QiniuDriver) StoreID() string {
	return d.bucketName
}

func (d *QiniuDriver) bucketManager() *qiniustorage.BucketManager {
	return qiniustorage.NewBucketManager(d.mac, &qiniustorage.Config{
		Region: d.region,
	})
}

func (d *QiniuDriver) key(relPath string) string {
	relPath = NormalizePath(relPath)
	if d.prefix == "" {
		return relPath
	}
	if relPath == "" {
		return d.prefix
	}
	return d.prefix + "/" + relPath
}

func (d *QiniuDriver) rel(key string) string {
	if d.prefix != "" {
		key = strings.TrimPrefix(key, d.prefix+"/")
	}
	return NormalizePath(key)
}

func (d *QiniuDriver) dirKey(dir string) string {
	key := d.key(dir)
	if key == "" {
		return ""
	}
	return key + "/"
}

// ListFiles 列出指定目录下的文件
func (d *QiniuDriver) ListFiles(dir string, recursive bool, exts []string) ([]FileInfo, error) {
	bucketManager := d.bucketManager()
	delimiter := "/"
	if recursive {
		delimiter = ""
	}

	var files []FileInfo
	marker := ""
	for {
		entries, _, nextMarker, hasNext, err := bucketManager.ListFiles(
			d.bucketName, d.dirKey(dir), delimiter, marker, 1000)
		if err != nil {
			return nil, mapQiniuError("list", dir, err)
		}
		for _, entry := range entries {
			if strings.HasSuffix(entry.Key, "/") {
				continue
			}
			if !matchExt(entry.Key, exts) {
				continue
			}
			files = append(files, FileInfo{
				Path:         d.rel(entry.Key),
				Name:         path.Base(entry.Key),
				Size:         entry.Fsize,
				LastModified: time.Unix(entry.PutTime/10000000, 0).Format(time.RFC3339),
				ETag:         entry.Hash,
			})
		}
		if !hasNext {
			break
		}
		marker = nextMarker
	}
	return files, nil
}

// ListFolders 列出指定目录下的直接子目录名
func (d *QiniuDriver) ListFolders(dir string) ([]string, error) {
	bucketManager := d.bucketManager()

	var folders []string
	marker := ""
	for {
		_, commonPrefixes, nextMarker, hasNext, err := bucketManager.ListFiles(
			d.bucketName, d.dirKey(dir), "/", marker, 1000)
		if err != nil {
			return nil, mapQiniuError("list_folders", dir, err)
		}
		for _, cp := range commonPrefixes {
			folders = append(folders, path.Base(strings.TrimSuffix(cp, "/")))
		}
		if !hasNext {
			break
		}
		marker = nextMarker
	}
	return folders, nil
}

// ReadFile 读取文件全部内容
// Kodo无直接读取接口，通过限时私有下载链接获取
func (d *QiniuDriver) ReadFile(relPath string) ([]byte, error) {
	deadline := time.Now().Add(time.Hour).Unix()
	privateURL := qiniustorage.MakePrivateURL(d.mac, d.bucketDomain, d.key(relPath), deadline)

	resp, err := http.Get(privateURL)
	if err != nil {
		return nil, NewError(KindTransient, "read", BackendQiniu, relPath, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, NewError(KindNotFound, "read", BackendQiniu, relPath, fmt.Errorf("status: %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, NewError(KindTransient, "read", BackendQiniu, relPath, fmt.Errorf("status: %s", resp.Status))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindTransient, "read", BackendQiniu, relPath, err)
	}
	return data, nil
}

// WriteFile 写入文件
func (d *QiniuDriver) WriteFile(relPath string, data []byte) error {
	objectKey := d.key(relPath)
	putPolicy := qiniustorage.PutPolicy{
		Scope: fmt.Sprintf("%s:%s", d.bucketName, objectKey),
	}
	upToken := putPolicy.UploadToken(d.mac)

	cfg := qiniustorage.Config{
		Region:        d.region,
		UseHTTPS:      true,
		UseCdnDomains: false,
	}

	formUploader := qiniustorage.NewFormUploader(&cfg)
	ret := qiniustorage.PutRet{}

	err := formUploader.Put(context.Background(), &ret, upToken, objectKey,
		bytes.NewReader(data), int64(len(data)), &qiniustorage.PutExtra{})
	if err != nil {
		return mapQiniuError("write", relPath, err)
	}
	return nil
}

// Move 将文件移动到目标目录，Kodo原生支持移动操作
func (d *QiniuDriver) Move(src string, destFolder string) (string, error) {
	newRel := NormalizePath(path.Join(NormalizePath(destFolder), path.Base(NormalizePath(src))))
	err := d.bucketManager().Move(d.bucketName, d.key(src), d.bucketName, d.key(newRel), true)
	if err != nil {
		return "", mapQiniuError("move", src, err)
	}
	return newRel, nil
}

// Delete 删除文件
func (d *QiniuDriver) Delete(relPath string) error {
	if err := d.bucketManager().Delete(d.bucketName, d.key(relPath)); err != nil {
		return mapQiniuError("delete", relPath, err)
	}
	return nil
}

// FileExists 检查文件是否存在
func (d *QiniuDriver) FileExists(relPath string) (bool, error) {
	_, err := d.bucketManager().Stat(d.bucketName, d.key(relPath))
	if err != nil {
		if isQiniuNotFound(err) {
			return false, nil
		}
		return false, mapQiniuError("stat", relPath, err)
	}
	return true, nil
}

// DisplayPath 返回面向用户的可读路径表示
func (d *QiniuDriver) DisplayPath(relPath string) string {
	return "kodo://" + d.bucketName + "/" + d.key(relPath)
}

// TestConnection 测试连接，尝试列出一个文件
func (d *QiniuDriver) TestConnection() error {
	if _, _, _, _, err := d.bucketManager().ListFiles(d.bucketName, "", "", "", 1); err != nil {
		return mapQiniuError("test", "", err)
	}
	return nil
}

// isQiniuNotFound SDK未提供类型化的不存在判断，按错误文本识别
func isQiniuNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}

// mapQiniuError 将Kodo错误映射为存储错误类别
func mapQiniuError(op, relPath string, err error) *StorageError {
	kind := KindTransient
	switch {
	case isQiniuNotFound(err):
		kind = KindNotFound
	case strings.Contains(err.Error(), "bad token"), strings.Contains(err.Error(), "unauthorized"):
		kind = KindPermissionDenied
	}
	return NewError(kind, op, BackendQiniu, relPath, err)
}
