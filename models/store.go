package models

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Store 显式构造的持久层客户端，由 main 注入到处理器和 API 层，
// 不再使用包级单例。
type Store struct {
	db  *gorm.DB
	sql *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("GORM 初始化失败: %w", err)
	}

	if err := gormDB.AutoMigrate(&Project{}, &Scene{}); err != nil {
		return nil, fmt.Errorf("自动建表失败: %w", err)
	}

	return &Store{db: gormDB, sql: sqlDB}, nil
}

func (s *Store) Close() error {
	return s.sql.Close()
}

// Project CRUD

func (s *Store) CreateProject(p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.db.Create(p).Error
}

func (s *Store) GetProjectByID(id string) (*Project, error) {
	var p Project
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProjectFields 部分字段更新（状态与分镜列表允许独立更新）
func (s *Store) UpdateProjectFields(id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return s.db.Model(&Project{}).Where("id = ?", id).Updates(fields).Error
}

func (s *Store) UpdateProjectStatus(id, status string) error {
	return s.UpdateProjectFields(id, map[string]interface{}{"status": status})
}

func (s *Store) UpdateProjectScript(id, script string) error {
	return s.UpdateProjectFields(id, map[string]interface{}{"script": script})
}

func (s *Store) DeleteProjectByID(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Scene{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Project{}, "id = ?", id).Error
	})
}

// Scene CRUD

// ReplaceScenes 本次运行的分镜整体替换上一次运行的分镜
func (s *Store) ReplaceScenes(projectID string, scenes []Scene) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Scene{}, "project_id = ?", projectID).Error; err != nil {
			return err
		}
		if len(scenes) == 0 {
			return nil
		}
		now := time.Now()
		for i := range scenes {
			scenes[i].CreatedAt = now
			scenes[i].UpdatedAt = now
		}
		return tx.Create(&scenes).Error
	})
}

func (s *Store) GetScenesByProjectID(projectID string) ([]Scene, error) {
	var scenes []Scene
	err := s.db.Where("project_id = ?", projectID).Order("order_no ASC").Find(&scenes).Error
	return scenes, err
}

// UpdateSceneFields 单分镜部分更新（用于阶段内逐项写回进度）
func (s *Store) UpdateSceneFields(sceneID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return s.db.Model(&Scene{}).Where("id = ?", sceneID).Updates(fields).Error
}

// UpdateScenesByProject 更新项目下全部分镜的公共字段（音频/字幕引用）
func (s *Store) UpdateScenesByProject(projectID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return s.db.Model(&Scene{}).Where("project_id = ?", projectID).Updates(fields).Error
}
