// 本文件实现了摄取流水日志，按月追加记录每个进入归档库的文档
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/weiwangfds/docfiler/internal/logger"
	"github.com/weiwangfds/docfiler/internal/storage"
)

// ingressEntry 摄取流水日志条目
type ingressEntry struct {
	Time    time.Time // 处理时间
	Status  string    // 处理结果（FILED/SKIPPED/FAILED）
	Source  string    // 来源位置
	Dest    string    // 落位位置，未落位时为空
	Summary string    // 文档摘要
	Err     string    // 错误信息，成功时为空
}

// ingressLogger 摄取流水日志记录器
// 日志文件按月存放在归档库的系统目录下，读取-追加-写回保持完整历史
// 日志写入失败只告警，不影响摄取流程
type ingressLogger struct {
	folder string // 系统目录名，如 --IncomingLog
}

// newIngressLogger 创建摄取流水日志记录器
func newIngressLogger(folder string) *ingressLogger {
	return &ingressLogger{folder: folder}
}

// logPath 返回指定月份的日志文件路径
func (l *ingressLogger) logPath(t time.Time) string {
	return l.folder + "/log/" + t.Format("2006-01") + "-ingress.log"
}

// append 追加一条流水记录到当月日志
func (l *ingressLogger) append(docstore storage.Driver, entry ingressEntry) {
	path := l.logPath(entry.Time)

	existing, err := docstore.ReadFile(path)
	if err != nil && !storage.IsNotFound(err) {
		logger.Warnf("[摄取日志] 读取日志文件失败 %s: %v", path, err)
		return
	}

	if err := docstore.WriteFile(path, append(existing, []byte(entry.render())...)); err != nil {
		logger.Warnf("[摄取日志] 写入日志文件失败 %s: %v", path, err)
	}
}

// render 渲染日志条目文本
func (e ingressEntry) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", e.Time.Format("2006-01-02 15:04:05"), e.Status)
	fmt.Fprintf(&sb, "  Source: %s\n", e.Source)
	if e.Dest != "" {
		fmt.Fprintf(&sb, "  Dest: %s\n", e.Dest)
	} else {
		fmt.Fprintf(&sb, "  Dest: (not filed)\n")
	}
	if e.Summary != "" {
		fmt.Fprintf(&sb, "  Summary: %s\n", e.Summary)
	}
	if e.Err != "" {
		fmt.Fprintf(&sb, "  Error: %s\n", e.Err)
	}
	return sb.String()
}
