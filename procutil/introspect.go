// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"maps"
	"slices"

	"github.com/jongio/procscope/backend"
)

type accessor func(ctx context.Context, p *Process) (any, error)

func read[T any](fn func(*Process, context.Context) (T, error)) accessor {
	return func(ctx context.Context, p *Process) (any, error) {
		v, err := fn(p, ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// attributeTable maps every AsDict attribute to its accessor.
var attributeTable = map[string]accessor{
	"pid": func(_ context.Context, p *Process) (any, error) {
		return p.pid, nil
	},
	"create_time": func(ctx context.Context, p *Process) (any, error) {
		if p.hasCreateTime {
			return p.createTime, nil
		}
		ct, err := p.backend.CreateTime(ctx, p.pid)
		if err != nil {
			return nil, err
		}
		return ct, nil
	},
	"cpu_percent": func(ctx context.Context, p *Process) (any, error) {
		v, err := p.CPUPercent(ctx, 0)
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	"ppid":             read((*Process).Ppid),
	"name":             read((*Process).Name),
	"exe":              read((*Process).Exe),
	"cmdline":          read((*Process).Cmdline),
	"status":           read((*Process).Status),
	"username":         read((*Process).Username),
	"cwd":              read((*Process).Cwd),
	"cpu_times":        read((*Process).CPUTimes),
	"memory_info":      read((*Process).MemoryInfo),
	"memory_percent":   read((*Process).MemoryPercent),
	"num_threads":      read((*Process).NumThreads),
	"num_fds":          read((*Process).NumFDs),
	"io_counters":      read((*Process).IOCounters),
	"num_ctx_switches": read((*Process).NumCtxSwitches),
	"nice":             read((*Process).Nice),
}

// Attributes returns the names accepted by AsDict, sorted.
func Attributes() []string {
	return slices.Sorted(maps.Keys(attributeTable))
}

// AsDict reads several attributes in one call. With no attrs every attribute
// in Attributes is read.
//
// An attribute the caller may not read is reported as adValue. An attribute
// the platform does not support is left out, unless the caller asked for it by
// name, in which case AsDict fails. Any other failure, including the process
// disappearing, aborts the call.
func (p *Process) AsDict(ctx context.Context, attrs []string, adValue any) (map[string]any, error) {
	explicit := len(attrs) > 0
	if !explicit {
		attrs = Attributes()
	}
	for _, name := range attrs {
		if _, ok := attributeTable[name]; !ok {
			return nil, backend.InvalidArgument("invalid attribute name %q", name)
		}
	}

	out := make(map[string]any, len(attrs))
	for _, name := range attrs {
		if _, done := out[name]; done {
			continue
		}
		v, err := attributeTable[name](ctx, p)
		switch {
		case err == nil:
			out[name] = v
		case backend.IsAccessDenied(err):
			out[name] = adValue
		case backend.IsNotImplemented(err) && !explicit:
		default:
			return nil, err
		}
	}
	return out, nil
}
