package database

import (
	"time"

	"gorm.io/gorm"
)

// 存储配置角色
const (
	StorageRoleDocstore = "docstore" // 归档库
	StorageRoleInbox    = "inbox"    // 收件箱
)

// StorageConfig 存储后端配置模型
// 用于管理归档库与收件箱可用的存储后端，支持本地文件系统、阿里云OSS、腾讯云COS、七牛云Kodo
// 每个角色（docstore/inbox）同一时间只能有一个激活配置
type StorageConfig struct {
	ID        uint           `gorm:"primarykey" json:"id"`                          // 主键ID，自增
	Name      string         `gorm:"not null;size:100" json:"name"`                 // 配置名称，用于标识不同的存储配置
	Role      string         `gorm:"not null;size:20;index" json:"role"`            // 配置角色：docstore（归档库）、inbox（收件箱）
	Backend   string         `gorm:"not null;size:20" json:"backend"`               // 存储后端：local、aliyun、tencent、qiniu
	StoreID   string         `gorm:"not null;size:200" json:"store_id"`             // 存储标识：本地为根目录路径，云端为存储桶名称
	Region    string         `gorm:"size:50" json:"region"`                         // 云服务区域，如：cn-hangzhou、ap-beijing等
	AccessKey string         `gorm:"size:100" json:"access_key"`                    // 访问密钥ID，本地后端留空
	SecretKey string         `gorm:"size:200" json:"secret_key,omitempty"`          // 访问密钥Secret，敏感信息，API响应时不返回
	Endpoint  string         `gorm:"size:200" json:"endpoint"`                      // 自定义服务端点URL，可选配置
	Prefix    string         `gorm:"size:200" json:"prefix"`                        // 存储内路径前缀，可选
	IsActive  bool           `gorm:"default:false" json:"is_active"`                // 是否为该角色当前激活使用的配置
	IsEnabled bool           `gorm:"default:true" json:"is_enabled"`                // 配置是否启用，禁用后不可激活
	CreatedAt time.Time      `json:"created_at"`                                    // 配置创建时间
	UpdatedAt time.Time      `json:"updated_at"`                                    // 配置最后修改时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间戳
}

// TableName 指定StorageConfig模型对应的数据库表名
func (StorageConfig) TableName() string {
	return "storage_configs"
}
