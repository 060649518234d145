// internal/runner/urls.go
package runner

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// NormalizeURL trims raw and defaults a missing scheme to https.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url '%s': %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return "", fmt.Errorf("invalid url '%s': missing host", raw)
		}
	case "file":
	default:
		return "", fmt.Errorf("invalid url '%s': unsupported scheme %q", raw, u.Scheme)
	}
	return u.String(), nil
}

// LoadURLs reads one URL per line from path. Blank lines and lines starting
// with '#' are ignored.
func LoadURLs(path string) ([]string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve urls file '%s': %w", path, err)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open urls file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := NormalizeURL(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		urls = append(urls, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read urls file: %w", err)
	}
	return urls, nil
}

// CollectURLs merges positional arguments with the contents of urlsFile,
// normalizing every entry and dropping duplicates while keeping order.
func CollectURLs(args []string, urlsFile string) ([]string, error) {
	var all []string
	for _, a := range args {
		u, err := NormalizeURL(a)
		if err != nil {
			return nil, err
		}
		all = append(all, u)
	}
	if urlsFile != "" {
		fromFile, err := LoadURLs(urlsFile)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}

	seen := make(map[string]struct{}, len(all))
	out := all[:0]
	for _, u := range all {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no urls given")
	}
	return out, nil
}
