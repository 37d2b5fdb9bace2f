package hoardlib

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// storageCheckPeriod is how often the monitor loop re-queries free
	// space for every known mount point.
	storageCheckPeriod = 2 * time.Second
	// storageLogPeriod dumps the free-space map every N loop iterations.
	storageLogPeriod = 10
)

// StorageMonitor keeps an updated free-space value for every mount point
// in use and refuses downloads when a destination drops below the
// configured threshold. There is a single writer (the background loop);
// readers go through the VMap.
type StorageMonitor struct {
	requiredFreeSpace int64
	freeSpace         *VMap[string, int64]
	unavailable       *VMap[string, struct{}]
	l                 *log.Logger

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewStorageMonitor creates a monitor with the given threshold. Values
// below the floor are clamped up to it; zero selects the default.
func NewStorageMonitor(requiredFreeSpace int64, l *log.Logger) *StorageMonitor {
	if requiredFreeSpace == 0 {
		requiredFreeSpace = DEF_REQUIRED_FREE_SPACE
	}
	if requiredFreeSpace < MIN_REQUIRED_FREE_SPACE {
		requiredFreeSpace = MIN_REQUIRED_FREE_SPACE
	}
	return &StorageMonitor{
		requiredFreeSpace: requiredFreeSpace,
		freeSpace:         NewVMap[string, int64](),
		unavailable:       NewVMap[string, struct{}](),
		l:                 l,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// CheckFreeSpace raises ErrInsufficientFreeSpace when the cached free
// space of the item's destination mount is below the threshold. The
// first use of a mount queries it synchronously and starts the loop.
func (sm *StorageMonitor) CheckFreeSpace(item *MediaItem) error {
	return sm.CheckFolder(item.DownloadFolder)
}

// CheckFolder is CheckFreeSpace for a bare folder path.
func (sm *StorageMonitor) CheckFolder(folder string) error {
	mount, err := mountPoint(folder)
	if err != nil {
		wlog(sm.l, "storage: no mount point for %q: %s", folder, err.Error())
		return fmt.Errorf("%w: no mount point for %q", ErrInsufficientFreeSpace, folder)
	}
	if _, bad := sm.unavailable.Get(mount); bad {
		return fmt.Errorf("%w: mount %q is unavailable", ErrInsufficientFreeSpace, mount)
	}

	free, seen := sm.freeSpace.Get(mount)
	if !seen {
		free, err = freeSpace(mount)
		if err != nil {
			sm.unavailable.Set(mount, struct{}{})
			wlog(sm.l, "storage: cannot query mount %q: %s", mount, err.Error())
			return fmt.Errorf("%w: mount %q is unavailable", ErrInsufficientFreeSpace, mount)
		}
		if free == -1 {
			wlog(sm.l, "storage: free space query unsupported on %q, check bypassed", mount)
		}
		sm.freeSpace.Set(mount, free)
		wlog(sm.l, "storage: new mount point %q in use for %q", mount, folder)
		sm.ensureLoop()
	}

	// -1 means the filesystem cannot answer; the gate is bypassed.
	if free == -1 || free > sm.requiredFreeSpace {
		return nil
	}
	return fmt.Errorf("%w: %s free on %q", ErrInsufficientFreeSpace, humanize.IBytes(uint64(free)), mount)
}

func (sm *StorageMonitor) ensureLoop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.started {
		return
	}
	sm.started = true
	safeGo(sm.l, nil, "storage monitor", nil, sm.loop)
}

func (sm *StorageMonitor) loop() {
	defer close(sm.done)
	ticker := time.NewTicker(storageCheckPeriod)
	defer ticker.Stop()
	var tick int
	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
		}
		sm.refresh()
		tick++
		if tick%storageLogPeriod == 0 {
			wlog(sm.l, "storage: %s", sm.String())
		}
	}
}

func (sm *StorageMonitor) refresh() {
	var mounts []string
	sm.freeSpace.Range(func(mount string, free int64) bool {
		if free != -1 {
			mounts = append(mounts, mount)
		}
		return true
	})
	for _, mount := range mounts {
		free, err := freeSpace(mount)
		if err != nil {
			wlog(sm.l, "storage: refresh of %q failed: %s", mount, err.Error())
			continue
		}
		sm.freeSpace.Set(mount, free)
	}
}

// Close stops the background loop.
func (sm *StorageMonitor) Close() {
	sm.mu.Lock()
	started := sm.started
	sm.mu.Unlock()
	select {
	case <-sm.stop:
		return
	default:
		close(sm.stop)
	}
	if started {
		<-sm.done
	}
}

// String dumps the free-space map for the periodic debug log.
func (sm *StorageMonitor) String() string {
	var b strings.Builder
	b.WriteString("free space:")
	sm.freeSpace.Range(func(mount string, free int64) bool {
		if free == -1 {
			fmt.Fprintf(&b, " %q=unsupported", mount)
		} else {
			fmt.Fprintf(&b, " %q=%s", mount, humanize.IBytes(uint64(free)))
		}
		return true
	})
	return b.String()
}
