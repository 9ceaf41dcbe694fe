// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch reports files that finish arriving in a landing
// directory.
//
// A file counts as arrived when a writer closes it (IN_CLOSE_WRITE) or
// when it is renamed into the directory (IN_MOVED_TO). Creation alone
// is not reported: a transfer that is still writing must not be
// picked up. Names starting with '.' are ignored, which covers the
// temporary files of atomic writers, including this module's own.
//
// Files already present when watching starts are listed by
// [Existing]. Call it after [Watch] so nothing landing in between is
// missed; a file may then be reported twice, which the landing
// pipeline tolerates.
package watch

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"
)

// Event is one arrived file, or a notice that events were lost.
type Event struct {
	// Path is the full path of the file. Empty when Overflow is set.
	Path string

	// Overflow means the kernel queue overflowed and some arrivals
	// were dropped. The receiver should rescan with Existing.
	Overflow bool
}

const arrivalMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO

// Watch starts watching directory and returns the channel of events.
// The channel is closed when ctx is done or the directory goes away.
func Watch(ctx context.Context, directory string, logger *slog.Logger) (<-chan Event, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	if _, err := unix.InotifyAddWatch(fd, directory, arrivalMask|unix.IN_ONLYDIR); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch on %s: %w", directory, err)
	}

	events := make(chan Event, 64)
	go readLoop(ctx, fd, directory, events, logger)
	return events, nil
}

// readLoop polls the inotify fd with a 100ms timeout so cancellation
// is noticed promptly. It owns fd and events.
func readLoop(ctx context.Context, fd int, directory string, events chan<- Event, logger *slog.Logger) {
	defer close(events)
	defer unix.Close(fd)

	buffer := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logger.Error("polling inotify", "directory", directory, "error", err)
			return
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			logger.Error("reading inotify", "directory", directory, "error", err)
			return
		}

		for _, raw := range parseEvents(buffer[:bytesRead]) {
			var event Event
			switch {
			case raw.mask&unix.IN_Q_OVERFLOW != 0:
				logger.Warn("inotify queue overflowed", "directory", directory)
				event = Event{Overflow: true}
			case raw.mask&unix.IN_IGNORED != 0:
				logger.Warn("watched directory went away", "directory", directory)
				return
			case raw.mask&unix.IN_ISDIR != 0, raw.name == "", strings.HasPrefix(raw.name, "."):
				continue
			default:
				event = Event{Path: filepath.Join(directory, raw.name)}
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

type rawEvent struct {
	mask uint32
	name string
}

// parseEvents decodes a buffer of inotify events.
//
// Inotify event layout (from inotify(7)):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null padded
//	};
func parseEvents(buffer []byte) []rawEvent {
	var parsed []rawEvent
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		mask := binary.NativeEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}
		name := nullTerminatedString(buffer[offset+unix.SizeofInotifyEvent : offset+eventSize])
		parsed = append(parsed, rawEvent{mask: mask, name: name})
		offset += eventSize
	}
	return parsed
}

func nullTerminatedString(data []byte) string {
	for index, b := range data {
		if b == 0 {
			return string(data[:index])
		}
	}
	return string(data)
}

// Existing returns the full paths of the regular files in directory,
// sorted by name, skipping names that start with '.'.
func Existing(directory string) ([]string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", directory, err)
	}
	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(directory, entry.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}
