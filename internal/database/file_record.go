// Package database 定义归档服务的数据库模型
// 包含文件元数据记录、存储后端配置和归档运行日志等核心数据模型
package database

import (
	"time"

	"gorm.io/gorm"

	apperrors "github.com/weiwangfds/docfiler/internal/errors"
)

// FileRecord 文件元数据记录模型
// 以文件内容的SHA-256哈希为身份标识，同一内容在不同位置、不同名称下共享同一条记录
// 记录归档状态、分类结果与来源/目标位置，是所有归档工作流的事实来源
type FileRecord struct {
	ID             uint           `gorm:"primarykey" json:"id"`                              // 主键ID，自增
	Hash           string         `gorm:"uniqueIndex;not null;size:64" json:"hash"`          // 文件内容SHA-256哈希（十六进制小写），身份标识
	SourceURI      string         `gorm:"size:1000" json:"source_uri"`                       // 最近一次观察到的来源位置URI（backend:storeID:relPath）
	DestinationURI string         `gorm:"index;size:1000" json:"destination_uri"`            // 归档目标位置URI，未归档时为空
	Filed          bool           `gorm:"default:false" json:"filed"`                        // 是否已成功归档，置真后合并不可回退
	Title          string         `gorm:"size:500" json:"title"`                             // 分类得到的文档标题
	SuggestedPath  string         `gorm:"size:1000" json:"suggested_path"`                   // 分类建议的归档路径（斜杠分隔）
	Confidence     *int           `json:"confidence"`                                        // 分类置信度（0-100），nil表示未分类
	ReportingYear  *int           `json:"reporting_year"`                                    // 文档所属年份，nil表示未知
	DocDate        string         `gorm:"size:10" json:"doc_date"`                           // 文档日期（YYYY-MM-DD），可为空
	Entity         string         `gorm:"size:200" json:"entity"`                            // 文档关联的机构/公司名称
	Summary        string         `gorm:"type:text" json:"summary"`                          // 文档内容摘要
	ObservedAt     time.Time      `gorm:"not null" json:"observed_at"`                       // 本条元数据的观察时间，合并时新者字段优先
	CreatedAt      time.Time      `json:"created_at"`                                        // 记录创建时间
	UpdatedAt      time.Time      `json:"updated_at"`                                        // 记录最后更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间戳
}

// TableName 指定FileRecord模型对应的数据库表名
func (FileRecord) TableName() string {
	return "file_records"
}

// Merge 合并两条同一内容的元数据记录，返回合并结果
// 纯函数，不修改接收者与参数
// 合并规则:
//  1. 两条记录哈希必须一致，否则返回哈希不一致错误
//  2. 逐字段取观察时间较新一方的非空值，较新一方字段为空时保留较旧一方的值
//  3. Filed 标志只进不退，任意一方已归档则结果为已归档
//  4. 结果的观察时间取两者中较新者
func (r FileRecord) Merge(other FileRecord) (FileRecord, error) {
	if r.Hash != other.Hash {
		return FileRecord{}, apperrors.NewByCode(apperrors.ErrCacheHashMismatch)
	}

	newer, older := r, other
	if other.ObservedAt.After(r.ObservedAt) {
		newer, older = other, r
	}

	out := older
	if newer.SourceURI != "" {
		out.SourceURI = newer.SourceURI
	}
	if newer.DestinationURI != "" {
		out.DestinationURI = newer.DestinationURI
	}
	if newer.Title != "" {
		out.Title = newer.Title
	}
	if newer.SuggestedPath != "" {
		out.SuggestedPath = newer.SuggestedPath
	}
	if newer.Confidence != nil {
		out.Confidence = newer.Confidence
	}
	if newer.ReportingYear != nil {
		out.ReportingYear = newer.ReportingYear
	}
	if newer.DocDate != "" {
		out.DocDate = newer.DocDate
	}
	if newer.Entity != "" {
		out.Entity = newer.Entity
	}
	if newer.Summary != "" {
		out.Summary = newer.Summary
	}

	// 归档标志只进不退
	out.Filed = r.Filed || other.Filed
	out.ObservedAt = newer.ObservedAt
	if out.ID == 0 {
		out.ID = newer.ID
	}

	return out, nil
}

// Classified 判断记录是否已包含分类结果
func (r FileRecord) Classified() bool {
	return r.Title != "" && r.SuggestedPath != ""
}
