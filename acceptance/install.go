package acceptance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/hashicorp/go-multierror"
	adb "github.com/prife/adbcheck"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

var ErrNoApkDir = errors.New("NoApkDir")

// Installer streams one apk into the package manager, *adb.Device implements it.
type Installer interface {
	Install(ctx context.Context, r io.Reader, size int64, replace bool) error
}

var _ Installer = (*adb.Device)(nil)

// InstallResult is the outcome for one apk.
type InstallResult struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

func (r InstallResult) Success() bool {
	return r.Err == nil
}

type InstallOptions struct {
	// Timeout bounds each apk, 0 means no limit beyond ctx.
	Timeout time.Duration
	// Progress draws a progress bar per apk on Output.
	Progress bool
	Output   io.Writer
}

// ResolveDir makes a relative dir relative to the directory of the running executable.
func ResolveDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return dir
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), dir)
}

// FindAPKs lists the *.apk files of dir in name order.
func FindAPKs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoApkDir, err)
	}
	apks := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return filepath.Join(dir, e.Name()), !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".apk")
	})
	sort.Strings(apks)
	return apks, nil
}

// InstallDir installs every apk of dir, replacing existing installs. It does not stop at
// the first failure: every apk gets a result and the error aggregates the failures.
func InstallDir(ctx context.Context, dev Installer, dir string, opts InstallOptions) ([]InstallResult, error) {
	apks, err := FindAPKs(dir)
	if err != nil {
		return nil, err
	}
	if len(apks) == 0 {
		log.Warnf("no apk found in %s", dir)
		return nil, nil
	}

	var result *multierror.Error
	results := make([]InstallResult, 0, len(apks))
	for i, apk := range apks {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
		log.Infof("installing [%d/%d] %s", i+1, len(apks), filepath.Base(apk))
		r := installOne(ctx, dev, apk, opts)
		if r.Err != nil {
			log.Errorf("install %s: %v", filepath.Base(apk), r.Err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", filepath.Base(apk), r.Err))
		}
		results = append(results, r)
	}
	return results, result.ErrorOrNil()
}

func installOne(ctx context.Context, dev Installer, path string, opts InstallOptions) InstallResult {
	res := InstallResult{Path: path}
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		res.Err = err
		return res
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		res.Err = err
		return res
	}
	res.Size = st.Size()

	var r io.Reader = f
	if opts.Progress {
		bar := newBar(res.Size, filepath.Base(path), opts.Output)
		bar.Start()
		defer bar.Finish()
		r = bar.NewProxyReader(f)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	res.Err = dev.Install(ctx, r, res.Size, true)
	res.Duration = time.Since(start)
	return res
}

func newBar(size int64, prefix string, out io.Writer) *pb.ProgressBar {
	bar := pb.New64(size).SetUnits(pb.U_BYTES).Prefix(prefix + " ")
	bar.ShowSpeed = true
	if out != nil {
		bar.Output = out
	}
	return bar
}
