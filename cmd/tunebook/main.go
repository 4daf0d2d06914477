// tunebook 命令：拆分 ABC 曲谱、建立索引，并把单首曲子交给外部渲染工具
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fsnotify/fsnotify"

	"github.com/yleoer/tunebook/pkg/archive"
	"github.com/yleoer/tunebook/pkg/config"
	"github.com/yleoer/tunebook/pkg/converter"
	"github.com/yleoer/tunebook/pkg/database"
	"github.com/yleoer/tunebook/pkg/normalizer"
	"github.com/yleoer/tunebook/pkg/parser"
	"github.com/yleoer/tunebook/pkg/render"
	"github.com/yleoer/tunebook/pkg/scanner"
	"github.com/yleoer/tunebook/pkg/scheduler"
	"github.com/yleoer/tunebook/pkg/tunebook"
	"github.com/yleoer/tunebook/pkg/util"
)

const version = "0.1.0"

// CLI 定义 tunebook 的命令行
var CLI struct {
	Split   SplitCmd   `cmd:"" help:"Split a tune book into individual tunes"`
	Count   CountCmd   `cmd:"" help:"Estimate and count the tunes in a tune book"`
	Index   IndexCmd   `cmd:"" help:"Index a tune book file or directory into SQLite"`
	Search  SearchCmd  `cmd:"" help:"Search indexed tunes by title"`
	Render  RenderCmd  `cmd:"" help:"Render tunes with abcm2ps or abc2midi"`
	Watch   WatchCmd   `cmd:"" help:"Watch the library directory and keep the index current"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// App 保存所有命令共享的依赖
type App struct {
	cfg    *config.Config
	logger *log.Logger
}

func (a *App) segmenter() *tunebook.Segmenter {
	n := normalizer.NewABCNormalizer(normalizer.Options{StripComments: a.cfg.StripComments}, a.logger)
	return tunebook.NewSegmenter(n, a.logger)
}

func (a *App) scanner() (*scanner.CollectionScanner, error) {
	var tc converter.TitleConverter = converter.Passthrough{}
	if a.cfg.ConvertTitles {
		c, err := converter.NewOpenCCConverter(a.logger)
		if err != nil {
			return nil, err
		}
		tc = c
	}
	return scanner.NewCollectionScanner(a.segmenter(), parser.NewHeaderParser(tc, a.logger), a.cfg.FallbackCharset, a.logger), nil
}

func (a *App) openStore() (database.TuneStore, error) {
	if err := os.MkdirAll(a.cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", a.cfg.DataDir, err)
	}
	return database.NewSQLiteStore(a.cfg.DBPath, a.logger)
}

// SplitCmd 拆分曲谱文件，输出到终端、目录或归档
type SplitCmd struct {
	Path    string `arg:"" help:"Tune book file" type:"existingfile"`
	JSON    bool   `help:"Print tunes as JSON"`
	Out     string `help:"Write one .abc file per tune into this directory" type:"path"`
	Archive string `help:"Write tunes into a tar.xz archive" type:"path"`
}

type splitTune struct {
	Index       int    `json:"index"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	StartOffset int    `json:"start_offset"`
	Text        string `json:"text"`
}

func (c *SplitCmd) Run(app *App) error {
	sc, err := app.scanner()
	if err != nil {
		return err
	}
	coll, err := sc.ScanFile(c.Path)
	if err != nil {
		return err
	}

	if c.Archive != "" {
		if err := archive.Export(coll, c.Archive); err != nil {
			return err
		}
		app.logger.Printf("Wrote %d tunes to %s", len(coll.Tunes), c.Archive)
	}
	if c.Out != "" {
		if err := os.MkdirAll(c.Out, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", c.Out, err)
		}
		for _, e := range coll.Tunes {
			path := filepath.Join(c.Out, archive.FileName(e))
			if err := os.WriteFile(path, archive.FileContent(e), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
		}
		app.logger.Printf("Wrote %d tunes to %s", len(coll.Tunes), c.Out)
	}
	if c.Out != "" || c.Archive != "" {
		return nil
	}

	if c.JSON {
		tunes := make([]splitTune, 0, len(coll.Tunes))
		for _, e := range coll.Tunes {
			tunes = append(tunes, splitTune{Index: e.Index, Number: e.Number, Title: e.Title, StartOffset: e.StartOffset, Text: e.Text})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tunes)
	}
	for i, e := range coll.Tunes {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(e.Text)
	}
	return nil
}

// CountCmd 打印估算曲目数和实际拆分数
type CountCmd struct {
	Path string `arg:"" help:"Tune book file" type:"existingfile"`
}

func (c *CountCmd) Run(app *App) error {
	text, _, err := util.ReadTextFileContent(c.Path, app.cfg.FallbackCharset)
	if err != nil {
		return err
	}
	book := app.segmenter().SegmentDocument(text)
	fmt.Printf("estimated: %d\ntunes: %d\n", tunebook.EstimateTuneCount(text), book.Len())
	return nil
}

// IndexCmd 把文件或目录扫描入库；目录中已删除的文件会从索引移除
type IndexCmd struct {
	Path string `arg:"" optional:"" help:"File or directory (defaults to LIBRARY_DIR)" type:"path"`
}

func (c *IndexCmd) Run(app *App) error {
	path := c.Path
	if path == "" {
		path = app.cfg.LibraryDir
	}
	sc, err := app.scanner()
	if err != nil {
		return err
	}
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if !util.IsDirectory(path) {
		coll, err := sc.ScanFile(path)
		if err != nil {
			return err
		}
		return store.SaveCollection(coll)
	}
	ts := scheduler.NewTaskScheduler(app.cfg, store, sc, app.logger)
	defer ts.Close()
	ts.InitialScan(path)
	return nil
}

// SearchCmd 按曲名搜索索引
type SearchCmd struct {
	Query string `arg:"" help:"Title substring"`
}

func (c *SearchCmd) Run(app *App) error {
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	matches, err := store.SearchTitles(c.Query)
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Printf("%s\t#%d\tX:%d\t%s\t%s\n", m.Path, m.Index, m.Number, m.Title, m.Key)
	}
	return nil
}

// RenderCmd 调用外部工具把曲子渲染为 SVG 或 MIDI
type RenderCmd struct {
	Path    string   `arg:"" help:"Tune book file" type:"existingfile"`
	Targets []string `arg:"" help:"Output files, one per tune; use '-' to skip a tune"`
	Format  string   `help:"Output format" enum:"svg,midi" default:"svg"`
	Start   int      `help:"Index of the first tune to render" default:"0"`
}

func (c *RenderCmd) Run(app *App) error {
	format := render.Format(c.Format)
	tool := app.cfg.Abcm2psPath
	if format == render.FormatMIDI {
		tool = app.cfg.Abc2midiPath
	}
	renderer, err := render.NewExecRenderer(format, tool, app.cfg.ToolTimeout, app.logger)
	if err != nil {
		return err
	}
	text, _, err := util.ReadTextFileContent(c.Path, app.cfg.FallbackCharset)
	if err != nil {
		return err
	}
	targets := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		if t != "-" {
			targets[i] = t
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return render.NewDispatcher(app.segmenter(), app.logger).Render(ctx, text, targets, render.Options{StartingTune: c.Start}, renderer)
}

// WatchCmd 监听曲谱目录，保持索引与文件同步
type WatchCmd struct{}

func (c *WatchCmd) Run(app *App) error {
	if err := app.cfg.EnsureDirs(); err != nil {
		return err
	}
	sc, err := app.scanner()
	if err != nil {
		return err
	}
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ts := scheduler.NewTaskScheduler(app.cfg, store, sc, app.logger)
	defer ts.Close()
	ts.InitialScan(app.cfg.LibraryDir)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating file watcher: %w", err)
	}
	defer watcher.Close()
	if err := addWatchDirs(watcher, app.cfg.LibraryDir); err != nil {
		return err
	}
	app.logger.Printf("Monitoring library directory %s for tune book changes...", app.cfg.LibraryDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			app.logger.Println("Shutting down watcher.")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			handleEvent(app.logger, watcher, ts, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			app.logger.Printf("ERROR: Watcher error: %v", err)
		}
	}
}

// handleEvent 把 fsnotify 事件转换为扫描或删除任务
func handleEvent(logger *log.Logger, watcher *fsnotify.Watcher, ts *scheduler.TaskScheduler, event fsnotify.Event) {
	if event.Has(fsnotify.Create) && util.IsDirectory(event.Name) {
		logger.Printf("  -> New directory created: %s. Watching and scanning it.", event.Name)
		if err := addWatchDirs(watcher, event.Name); err != nil {
			logger.Printf("ERROR: %v", err)
		}
		ts.InitialScan(event.Name)
		return
	}
	if !util.IsTuneBookFile(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		logger.Printf("  -> Tune book removed: %s. Scheduling index removal.", event.Name)
		ts.TriggerRemove(event.Name)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		logger.Printf("  -> Tune book changed: %s. Scheduling scan.", event.Name)
		ts.TriggerScan(event.Name)
	}
}

// addWatchDirs fsnotify 不递归，逐个添加子目录
func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("error adding %s to watcher: %w", path, err)
		}
		return nil
	})
}

// VersionCmd 打印版本信息
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("tunebook %s\n", version)
	return nil
}

func main() {
	logger := log.New(os.Stderr, "[TuneBook] ", log.LstdFlags|log.Lshortfile)
	ctx := kong.Parse(&CLI,
		kong.Name("tunebook"),
		kong.Description("Split, index and render ABC tune books"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	err = ctx.Run(&App{cfg: cfg, logger: logger})
	ctx.FatalIfErrorf(err)
}
