package dnl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/record"
)

// prefixBits is 5 hex digits, the width of every upstream range-API shard.
const prefixBits = 20

// ErrResumeImpossible means a partial corpus could not be matched against
// any upstream shard boundary; the caller should suggest restarting
// without --resume.
var ErrResumeImpossible = errors.New("dnl: cannot resume from this corpus file")

// Resume recovers the next prefix to download from a partial corpus file,
// per 4.4. It may truncate the file's tail: first to the nearest whole
// record, then (if the last shard was only partially written) further
// back to the record preceding that shard's first entry.
func Resume[T any](ctx context.Context, client *http.Client, baseURL string, path string, codec record.Codec[T], parse func(line string) (T, error)) (nextPrefix uint32, err error) {
	if client == nil {
		client = http.DefaultClient
	}

	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("dnl: %w", err)
	}

	recSize := int64(codec.Size)
	if rem := st.Size() % recSize; rem != 0 {
		if err := os.Truncate(path, st.Size()-rem); err != nil {
			return 0, fmt.Errorf("dnl: truncating partial tail record: %w", err)
		}
	}

	r, err := flatfile.Open(path, codec)
	if err != nil {
		return 0, fmt.Errorf("dnl: %w", err)
	}
	defer r.Close()

	if r.Len() == 0 {
		return 0, nil
	}

	last, err := r.At(r.Len() - 1)
	if err != nil {
		return 0, fmt.Errorf("dnl: reading last record: %w", err)
	}

	p := codec.HexPrefix(last, prefixBits)
	lastHex := any(last).(interface{ String() string }).String()
	lastDigestHex := strings.SplitN(lastHex, ":", 2)[0]
	lastSuffix := strings.ToUpper(lastDigestHex[prefixBits/4:])

	body, err := fetchShardBody(ctx, client, baseURL, p)
	if err != nil {
		return 0, fmt.Errorf("dnl: resume GET shard %05X: %w", p, err)
	}
	lines := splitLines(body)
	if len(lines) == 0 {
		return 0, fmt.Errorf("%w: upstream shard %05X is empty", ErrResumeImpossible, p)
	}

	lastLineSuffix := strings.ToUpper(strings.SplitN(lines[len(lines)-1], ":", 2)[0])
	if lastLineSuffix == lastSuffix {
		// File is complete through shard p; resume from the next shard.
		return p + 1, nil
	}

	firstLine := fmt.Sprintf("%05X%s", p, lines[0])
	target, err := parse(firstLine)
	if err != nil {
		return 0, fmt.Errorf("dnl: parsing shard %05X's first line: %w", p, err)
	}

	for i := r.Len() - 1; i >= 0; i-- {
		v, err := r.At(i)
		if err != nil {
			return 0, fmt.Errorf("dnl: %w", err)
		}
		if codec.Compare(v, target) == 0 {
			if err := os.Truncate(path, i*recSize); err != nil {
				return 0, fmt.Errorf("dnl: truncating to resume point: %w", err)
			}
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: first record of shard %05X not found in corpus", ErrResumeImpossible, p)
}

func fetchShardBody(ctx context.Context, client *http.Client, baseURL string, prefix uint32) (string, error) {
	url := fmt.Sprintf("%s%05X", baseURL, prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
