// Package database 定义了数据库相关的模型和结构体
// 包含文件元数据缓存、存储配置和归档运行记录等核心数据模型
package database

// 此文件保留作为数据库模型包的入口文件
// 具体的模型定义已拆分到以下文件：
// - file_record.go: 文件元数据缓存模型（FileRecord）
// - storage_models.go: 存储配置模型（StorageConfig）
// - filing_models.go: 归档运行记录模型（FilingRun, FilingEntry）
