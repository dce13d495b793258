package main

import (
	"context"
	"strings"

	"github.com/wippyai/spawn/engine"
)

// newLoader routes builtin: images to the builtin engines and everything else
// to wazero. S3 is only configured when an image needs it.
func newLoader(ctx context.Context, images []string, opts *options) (engine.Loaders, func(context.Context) error, error) {
	src := engine.Sources{Local: engine.FileSource{Dir: opts.imageDir}}
	for _, img := range images {
		if strings.HasPrefix(img, "s3://") {
			s3src, err := engine.NewS3Source(ctx, opts.s3)
			if err != nil {
				return nil, nil, err
			}
			src.S3 = s3src
			break
		}
	}
	wz := engine.NewWazeroLoader(ctx, &engine.Config{MemoryLimitPages: opts.memoryPages, Source: src})
	return engine.Loaders{engine.NewBuiltinLoader(), wz}, wz.Close, nil
}
