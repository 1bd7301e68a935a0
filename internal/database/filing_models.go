package database

import (
	"time"

	"gorm.io/gorm"
)

// 归档运行的工作流类型
const (
	RunTypeScan        = "scan"        // 全量扫描归档
	RunTypeVerify      = "verify"      // 归档校验
	RunTypeRepair      = "repair"      // 缓存修复
	RunTypeDeduplicate = "deduplicate" // 目录去重
	RunTypeIngest      = "ingest"      // 收件箱摄取
)

// 归档运行状态
const (
	RunStatusRunning = "running" // 执行中
	RunStatusDone    = "done"    // 正常结束
	RunStatusFailed  = "failed"  // 异常终止
)

// 单个文档的处置结果
const (
	DispositionFiled     = "filed"     // 已归档
	DispositionSkipped   = "skipped"   // 已跳过（已归档或无需处理）
	DispositionDuplicate = "duplicate" // 重复内容
	DispositionRepaired  = "repaired"  // 已修复
	DispositionMoved     = "moved"     // 已移动
	DispositionManual    = "manual"    // 需人工处理
	DispositionFailed    = "failed"    // 处理失败
)

// FilingRun 归档运行日志模型
// 每次工作流执行产生一条运行记录，附带逐文档的处置明细
type FilingRun struct {
	ID         uint           `gorm:"primarykey" json:"id"`                       // 主键ID，自增
	RunID      string         `gorm:"uniqueIndex;not null;size:36" json:"run_id"` // 运行标识（UUID格式）
	RunType    string         `gorm:"not null;size:20;index" json:"run_type"`     // 工作流类型：scan、verify、repair、deduplicate、ingest
	Status     string         `gorm:"not null;size:20" json:"status"`             // 运行状态：running、done、failed
	Total      int            `json:"total"`                                      // 处理文档总数
	Filed      int            `json:"filed"`                                      // 成功归档数
	Skipped    int            `json:"skipped"`                                    // 跳过数
	Failed     int            `json:"failed"`                                     // 失败数
	ErrorMsg   string         `gorm:"type:text" json:"error_msg"`                 // 运行异常终止时的错误信息
	StartedAt  time.Time      `json:"started_at"`                                 // 运行开始时间
	FinishedAt *time.Time     `json:"finished_at"`                                // 运行结束时间，未结束为nil
	CreatedAt  time.Time      `json:"created_at"`                                 // 记录创建时间
	UpdatedAt  time.Time      `json:"updated_at"`                                 // 记录最后更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间戳
}

// TableName 指定FilingRun模型对应的数据库表名
func (FilingRun) TableName() string {
	return "filing_runs"
}

// FilingEntry 归档处置明细模型
// 记录单次运行中每个文档的处置结果与原因，用于运行报告查询
type FilingEntry struct {
	ID          uint           `gorm:"primarykey" json:"id"`                   // 主键ID，自增
	RunID       string         `gorm:"not null;size:36;index" json:"run_id"`   // 所属运行标识
	Hash        string         `gorm:"size:64;index" json:"hash"`              // 文档内容哈希，哈希失败时为空
	SourceURI   string         `gorm:"size:1000" json:"source_uri"`            // 文档来源位置URI
	DestURI     string         `gorm:"size:1000" json:"dest_uri"`              // 文档最终位置URI，未落位时为空
	Disposition string         `gorm:"not null;size:20" json:"disposition"`    // 处置结果：filed、skipped、duplicate、repaired、moved、manual、failed
	Reason      string         `gorm:"type:text" json:"reason"`                // 处置原因说明
	CreatedAt   time.Time      `json:"created_at"`                             // 记录创建时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间戳
}

// TableName 指定FilingEntry模型对应的数据库表名
func (FilingEntry) TableName() string {
	return "filing_entries"
}
