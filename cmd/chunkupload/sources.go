package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/melbahja/got"
)

// sourceResolver turns upload arguments into local file paths.
// Arguments may be plain paths, glob patterns or http(s) URLs; remote files are downloaded to a temp dir first.
type sourceResolver struct {
	logger       log.Logger
	httpClient   *http.Client
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	tempDirs     []string
}

func newSourceResolver(logger log.Logger) *sourceResolver {
	return &sourceResolver{
		logger:       logger,
		httpClient:   retryhttp.NewClient(logger).StandardClient(),
		pathProvider: pathutil.NewPathProvider(),
		pathModifier: pathutil.NewPathModifier(),
		pathChecker:  pathutil.NewPathChecker(),
	}
}

func (r *sourceResolver) resolve(ctx context.Context, args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		switch {
		case isRemote(arg):
			pth, err := r.download(ctx, arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, pth)
		case isPattern(arg):
			matches, err := r.glob(arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, matches...)
		default:
			pth, err := r.localPath(arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, pth)
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}

	return paths, nil
}

// cleanup removes the downloaded files.
func (r *sourceResolver) cleanup() {
	for _, dir := range r.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warnf("Failed to remove %s: %s", dir, err)
		}
	}
	r.tempDirs = nil
}

func (r *sourceResolver) localPath(pth string) (string, error) {
	absPath, err := r.pathModifier.AbsPath(pth) // resolves ~/ and expands any envs
	if err != nil {
		return "", fmt.Errorf("failed to parse path %s: %w", pth, err)
	}

	exists, err := r.pathChecker.IsPathExists(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to check path %s: %w", absPath, err)
	}
	if !exists {
		return "", fmt.Errorf("file doesn't exist: %s", pth)
	}

	return absPath, nil
}

func (r *sourceResolver) glob(pattern string) ([]string, error) {
	base, filePattern := doublestar.SplitPattern(pattern)
	absBase, err := r.pathModifier.AbsPath(base)
	if err != nil {
		return nil, err
	}

	matches, err := doublestar.Glob(os.DirFS(absBase), filePattern)
	if err != nil {
		return nil, fmt.Errorf("error in path pattern '%s': %w", pattern, err)
	}
	if len(matches) == 0 {
		r.logger.Warnf("No match for path pattern: %s", pattern)
		return nil, nil
	}

	var paths []string
	for _, match := range matches {
		pth := filepath.Join(absBase, match)
		info, err := os.Stat(pth)
		if err != nil {
			return nil, fmt.Errorf("failed to check path %s: %w", pth, err)
		}
		if info.IsDir() {
			r.logger.Debugf("Skipping directory: %s", pth)
			continue
		}
		paths = append(paths, pth)
	}

	return paths, nil
}

func (r *sourceResolver) download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %s: %w", rawURL, err)
	}

	tempDir, err := r.pathProvider.CreateTempDir("chunkupload")
	if err != nil {
		return "", err
	}
	r.tempDirs = append(r.tempDirs, tempDir)

	fileName := path.Base(u.Path)
	if fileName == "." || fileName == "/" {
		fileName = "download"
	}
	dest := filepath.Join(tempDir, fileName)

	r.logger.Infof("Downloading %s...", rawURL)
	downloader := got.New()
	downloader.Client = r.httpClient
	if err := downloader.Do(got.NewDownload(ctx, rawURL, dest)); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	r.logger.Debugf("Downloaded to %s", dest)

	return dest, nil
}

// isPattern reports whether arg uses doublestar pattern syntax.
func isPattern(arg string) bool {
	return strings.ContainsAny(arg, "*?[{")
}

func isRemote(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}
