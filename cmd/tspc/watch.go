package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow absorbs the burst of events editors produce on save.
const debounceWindow = 150 * time.Millisecond

// watchLoop compiles once, then recompiles whenever one of the source files
// changes. Watches the parent directories rather than the files themselves
// because editors that write-via-rename replace the inode.
func watchLoop(files []string, output string, useColor bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()

	wanted := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		wanted[filepath.Clean(file)] = true
		dirs[filepath.Dir(file)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	recompile := func() {
		if err := compileOnce(files, output, useColor); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	recompile()
	fmt.Fprintf(os.Stderr, "watching %d files (ctrl-c to stop)\n", len(wanted))

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !wanted[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			recompile()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: watch: %v\n", err)
		}
	}
}
