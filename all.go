package jarshade

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// ShadeAll shades every input into outDir.
//
// Archives are independent: a failure on one does not stop or undo the
// others. The returned slice is aligned with inputs; entries for failed
// archives hold only Input and Output. The error joins every per-archive
// failure and is nil only if all archives succeeded.
func (s *Shader) ShadeAll(ctx context.Context, inputs []string, outDir string) ([]Result, error) {
	results := make([]Result, len(inputs))
	errs := make([]error, len(inputs))

	owner := make(map[string]int, len(inputs))
	for i, in := range inputs {
		results[i] = Result{Input: in, Output: filepath.Join(outDir, OutputName(in))}
		if j, dup := owner[results[i].Output]; dup {
			errs[i] = fmt.Errorf("%s: %w: output %s is also written for %s",
				in, ErrDuplicateEntry, results[i].Output, inputs[j])
			continue
		}
		owner[results[i].Output] = i
	}

	var g errgroup.Group
	g.SetLimit(s.archiveConcurrency)
	for i, in := range inputs {
		if errs[i] != nil {
			continue
		}
		g.Go(func() error {
			res, err := s.ShadeFile(ctx, in, outDir)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", in, err)
				s.log().Error("shading failed", "archive", in, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines report through errs

	return results, errors.Join(errs...)
}
