package scheduler

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yleoer/tunebook/pkg/config"
	"github.com/yleoer/tunebook/pkg/database"
	"github.com/yleoer/tunebook/pkg/scanner"
	"github.com/yleoer/tunebook/pkg/util"
)

// TaskScheduler 负责调度曲谱文件的扫描与入库
type TaskScheduler struct {
	cfg               *config.Config
	store             database.TuneStore
	scanner           *scanner.CollectionScanner
	logger            *log.Logger
	scanMutex         sync.Mutex // 保护扫描过程
	pendingScans      map[string]*time.Timer
	pendingScansMutex sync.Mutex // 保护 pendingScans map
	wg                sync.WaitGroup
	closed            bool
}

// NewTaskScheduler 创建一个新的 TaskScheduler 实例
func NewTaskScheduler(
	cfg *config.Config,
	store database.TuneStore,
	collectionScanner *scanner.CollectionScanner,
	logger *log.Logger,
) *TaskScheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &TaskScheduler{
		cfg:          cfg,
		store:        store,
		scanner:      collectionScanner,
		logger:       logger,
		pendingScans: make(map[string]*time.Timer),
	}
}

// InitialScan 对曲谱目录进行初始扫描，内容未变的文件直接跳过
func (ts *TaskScheduler) InitialScan(root string) {
	ts.logger.Println("Performing initial scan for unindexed tune books in library directory...")
	seen := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			ts.logger.Printf("ERROR: Error walking %s for initial scan: %v", path, err)
			return nil
		}
		if d.IsDir() || !util.IsTuneBookFile(path) {
			return nil
		}
		seen[path] = true
		ts.indexFile(path)
		return nil
	})
	if err != nil {
		ts.logger.Printf("ERROR: Error reading library directory %s for initial scan: %v", root, err)
	} else {
		ts.pruneMissing(root, seen)
	}
	ts.logger.Println("Initial scan completed.")
}

// pruneMissing 删除 root 下已入库但文件已不存在的记录
func (ts *TaskScheduler) pruneMissing(root string, seen map[string]bool) {
	paths, err := ts.store.ListCollectionPaths()
	if err != nil {
		ts.logger.Printf("ERROR: Error listing indexed tune books: %v", err)
		return
	}
	for _, path := range paths {
		if seen[path] || !isWithin(root, path) {
			continue
		}
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		ts.logger.Printf("  -> Tune book %s no longer exists. Removing from index.", path)
		if err := ts.store.RemoveCollection(path); err != nil {
			ts.logger.Printf("ERROR: Error removing %s from index: %v", path, err)
		}
	}
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// TriggerScan 将一个文件加入延迟扫描队列；重复触发会重置计时器
func (ts *TaskScheduler) TriggerScan(path string) {
	ts.schedule(path, func() {
		stable, err := ts.waitForFileStability(path)
		if err != nil {
			ts.logger.Printf("ERROR: Error checking stability of %s: %v", path, err)
			return
		}
		if !stable {
			ts.logger.Printf("  -> %s is still changing. Rescheduling scan.", path)
			ts.TriggerScan(path)
			return
		}
		ts.indexFile(path)
	})
}

// TriggerRemove 文件被删除或改名后，从索引中移除
func (ts *TaskScheduler) TriggerRemove(path string) {
	ts.schedule(path, func() {
		if _, err := os.Stat(path); err == nil {
			// 文件又出现了（例如编辑器的原子保存），按修改处理
			ts.indexFile(path)
			return
		}
		if err := ts.store.RemoveCollection(path); err != nil {
			ts.logger.Printf("ERROR: Error removing %s from index: %v", path, err)
		}
	})
}

func (ts *TaskScheduler) schedule(path string, task func()) {
	ts.pendingScansMutex.Lock()
	defer ts.pendingScansMutex.Unlock()
	if ts.closed {
		return
	}
	if timer, ok := ts.pendingScans[path]; ok {
		if timer.Stop() {
			ts.wg.Done()
		}
	}
	ts.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(ts.cfg.StabilityCheckInterval, func() {
		defer ts.wg.Done()
		// 扫描开始前从队列中移除，扫描期间的新事件会重新排队
		ts.pendingScansMutex.Lock()
		if ts.pendingScans[path] == timer {
			delete(ts.pendingScans, path)
		}
		ts.pendingScansMutex.Unlock()
		task()
	})
	ts.pendingScans[path] = timer
	ts.logger.Printf("Scheduled scan for %s in %v", path, ts.cfg.StabilityCheckInterval)
}

// Close 取消尚未执行的任务，并等待正在执行的任务结束
func (ts *TaskScheduler) Close() {
	ts.pendingScansMutex.Lock()
	ts.closed = true
	for path, timer := range ts.pendingScans {
		if timer.Stop() {
			ts.wg.Done()
		}
		delete(ts.pendingScans, path)
	}
	ts.pendingScansMutex.Unlock()
	ts.wg.Wait()
}

// indexFile 执行实际的扫描与入库
func (ts *TaskScheduler) indexFile(path string) {
	ts.scanMutex.Lock()
	defer ts.scanMutex.Unlock()
	ts.logger.Printf("-> Indexing tune book: %s", path)
	coll, err := ts.scanner.ScanFile(path)
	if err != nil {
		ts.logger.Printf("ERROR: Error scanning tune book %s: %v", path, err)
		return
	}
	current, err := ts.store.IsCollectionCurrent(path, coll.Hash)
	if err != nil {
		ts.logger.Printf("ERROR: Error checking index status for %s: %v", path, err)
		// 即使出错也尝试入库，避免遗漏
	}
	if current {
		ts.logger.Printf("  -> Tune book %s unchanged since last index. Skipping.", path)
		return
	}
	if err := ts.store.SaveCollection(coll); err != nil {
		ts.logger.Printf("ERROR: Error indexing tune book %s: %v", path, err)
		return
	}
	ts.logger.Printf("Successfully indexed %d tunes from %s.", len(coll.Tunes), path)
}

// waitForFileStability 等待文件大小与修改时间在 StabilityQuietDuration 内保持不变
func (ts *TaskScheduler) waitForFileStability(path string) (bool, error) {
	var previous fileInfo
	var lastChange time.Time
	sampled := false
	start := time.Now()
	for time.Since(start) < ts.cfg.StabilityMaxWait {
		now := time.Now()
		info, err := os.Stat(path)
		if err != nil {
			return false, err
		}
		current := fileInfo{Size: info.Size(), ModTime: info.ModTime()}
		if !sampled || current.Size != previous.Size || !current.ModTime.Equal(previous.ModTime) {
			previous = current
			lastChange = now
			sampled = true
		}
		if now.Sub(lastChange) >= ts.cfg.StabilityQuietDuration {
			return true, nil
		}
		time.Sleep(ts.cfg.StabilityCheckInterval)
	}
	ts.logger.Printf("  -> Max wait time for stability exceeded for %s.", path)
	return false, nil
}

// fileInfo 记录文件的关键信息
type fileInfo struct {
	Size    int64
	ModTime time.Time
}
