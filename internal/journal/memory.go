package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const defaultCapacity = 512

// compactFactor 控制日志文件的压缩阈值：行数超过 capacity*compactFactor 时重写为最近的 capacity 条。
const compactFactor = 2

// MemoryStore 在内存中保留最近的记录，可选地以 JSON Lines 追加写入本地文件。
// records 按写入顺序保存，最旧的在前。
type MemoryStore struct {
	mu        sync.RWMutex
	capacity  int
	dataFile  string
	fileLines int
	records   []Exchange
}

// NewMemoryStore 创建内存记录仓库。dataDir 为空时不落盘。
func NewMemoryStore(dataDir string, capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	store := &MemoryStore{capacity: capacity}
	if dataDir == "" {
		return store, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	store.dataFile = filepath.Join(dataDir, "exchanges.log")
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	if err := store.compactIfNeeded(); err != nil {
		return nil, err
	}
	return store, nil
}

// Record 追加一条记录。
func (m *MemoryStore) Record(_ context.Context, exchange Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dataFile != "" {
		encoded, err := json.Marshal(exchange)
		if err != nil {
			return fmt.Errorf("序列化对话记录失败: %w", err)
		}
		file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("打开对话日志失败: %w", err)
		}
		_, err = file.Write(append(encoded, '\n'))
		closeErr := file.Close()
		if err != nil {
			return fmt.Errorf("写入对话日志失败: %w", err)
		}
		if closeErr != nil {
			return fmt.Errorf("关闭对话日志失败: %w", closeErr)
		}
		m.fileLines++
	}

	m.records = m.trim(append(m.records, exchange))
	return m.compactIfNeeded()
}

// Latest 返回最近的记录，按时间倒序排列。
func (m *MemoryStore) Latest(_ context.Context, limit int) ([]Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]Exchange, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, m.records[i])
	}
	return results, nil
}

// Close 实现 Store。
func (m *MemoryStore) Close() error { return nil }

// trim 只保留最近的 capacity 条，并在底层数组过大时重新分配。
func (m *MemoryStore) trim(records []Exchange) []Exchange {
	if len(records) <= m.capacity {
		return records
	}
	records = records[len(records)-m.capacity:]
	if cap(records) > compactFactor*m.capacity {
		records = append(make([]Exchange, 0, m.capacity), records...)
	}
	return records
}

func (m *MemoryStore) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取对话日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var (
		restored []Exchange
		lines    int
	)
	for scanner.Scan() {
		lines++
		var record Exchange
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append(restored, record)
		if len(restored) > compactFactor*m.capacity {
			restored = m.trim(restored)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析对话日志失败: %w", err)
	}
	m.records = m.trim(restored)
	m.fileLines = lines
	return nil
}

// compactIfNeeded 在日志文件明显超过容量时，用内存中的记录原子替换文件。
func (m *MemoryStore) compactIfNeeded() error {
	if m.dataFile == "" || m.fileLines <= compactFactor*m.capacity {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.dataFile), "exchanges-*.tmp")
	if err != nil {
		return fmt.Errorf("压缩对话日志失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := bufio.NewWriter(tmp)
	for _, record := range m.records {
		encoded, err := json.Marshal(record)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("序列化对话记录失败: %w", err)
		}
		writer.Write(encoded)
		writer.WriteByte('\n')
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("压缩对话日志失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("压缩对话日志失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.dataFile); err != nil {
		return fmt.Errorf("替换对话日志失败: %w", err)
	}
	m.fileLines = len(m.records)
	return nil
}
