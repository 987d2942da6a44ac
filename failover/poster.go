package failover

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PosterConfig tunes the still-frame pipeline for the text substitute.
type PosterConfig struct {
	MaxWidth int    // clamp width, default 640
	MIME     string // image/jpeg or image/png, default image/jpeg
	Quality  int    // jpeg quality, default 60
}

func (c PosterConfig) withDefaults() PosterConfig {
	if c.MaxWidth <= 0 {
		c.MaxWidth = 640
	}
	if c.MIME == "" {
		c.MIME = "image/jpeg"
	}
	if c.Quality <= 0 {
		c.Quality = 60
	}
	return c
}

// EncodePosterDataURI decodes raw (jpeg/png/webp), downscales it to the
// configured width and returns it as a data URI ready for embedding. key
// identifies the source for the disk cache; pass "" to skip caching.
func EncodePosterDataURI(raw []byte, key string, cfg PosterConfig) (string, error) {
	cfg = cfg.withDefaults()
	if key != "" {
		if data, mime, ok := posterCacheGet(cfg, key); ok {
			return dataURI(mime, data), nil
		}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("poster decode: %w", err)
	}
	scaled, w, h := clampToWidth(img, cfg.MaxWidth)

	mime := strings.ToLower(cfg.MIME)
	if mime == "image/jpeg" && imageHasAlpha(scaled) {
		mime = "image/png"
	}
	var out bytes.Buffer
	switch mime {
	case "image/png":
		if err := png.Encode(&out, scaled); err != nil {
			return "", err
		}
	default:
		mime = "image/jpeg"
		if err := jpeg.Encode(&out, scaled, &jpeg.Options{Quality: cfg.Quality}); err != nil {
			return "", err
		}
	}
	if key != "" {
		posterCachePut(cfg, key, out.Bytes(), mime, w, h)
	}
	return dataURI(mime, out.Bytes()), nil
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func clampToWidth(img image.Image, maxWidth int) (image.Image, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth <= 0 || w <= 0 || h <= 0 || w <= maxWidth {
		return img, w, h
	}
	scaledH := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if scaledH < 1 {
		scaledH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, scaledH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst, maxWidth, scaledH
}

// imageHasAlpha samples up to a 64x64 grid to avoid heavy scans.
func imageHasAlpha(img image.Image) bool {
	b := img.Bounds()
	dx, dy := b.Dx(), b.Dy()
	if dx <= 0 || dy <= 0 {
		return false
	}
	stepX := dx / 64
	if stepX < 1 {
		stepX = 1
	}
	stepY := dy / 64
	if stepY < 1 {
		stepY = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

var (
	posterCacheOnce sync.Once
	posterCacheDir  string
	posterCacheMax  int64
	posterCacheMu   sync.Mutex
)

func initPosterCache() {
	posterCacheDir = os.Getenv("ATRIUM_POSTER_CACHE_DIR")
	if posterCacheDir == "" {
		posterCacheDir = filepath.Join("cache", "poster")
	}
	if err := os.MkdirAll(posterCacheDir, 0o755); err != nil {
		return
	}
	mb := 50
	if s := os.Getenv("ATRIUM_POSTER_CACHE_MB"); s != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
			mb = v
		}
	}
	posterCacheMax = int64(mb) * 1024 * 1024
}

func posterCacheKey(cfg PosterConfig, key string) (string, string) {
	h := sha1.Sum([]byte(cfg.MIME + "|q=" + strconv.Itoa(cfg.Quality) + "|w=" + strconv.Itoa(cfg.MaxWidth) + "|" + key))
	hex := make([]byte, 40)
	const hexd = "0123456789abcdef"
	for i, b := range h[:] {
		hex[i*2] = hexd[b>>4]
		hex[i*2+1] = hexd[b&0xF]
	}
	dir := filepath.Join(posterCacheDir, string(hex[0]), string(hex[1]))
	return dir, filepath.Join(dir, string(hex)+".bin")
}

func posterCacheGet(cfg PosterConfig, key string) ([]byte, string, bool) {
	posterCacheOnce.Do(initPosterCache)
	_, path := posterCacheKey(cfg, key)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", false
	}
	defer f.Close()
	header := make([]byte, 6)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, "", false
	}
	mime := "image/jpeg"
	if header[4] == 'p' {
		mime = "image/png"
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, "", false
	}
	_ = os.Chtimes(path, time.Now(), time.Now())
	return b, mime, true
}

func posterCachePut(cfg PosterConfig, key string, data []byte, mime string, w, h int) {
	posterCacheOnce.Do(initPosterCache)
	dir, path := posterCacheKey(cfg, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	var hdr [6]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(w))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(h))
	hdr[4] = 'j'
	if mime == "image/png" {
		hdr[4] = 'p'
	}
	_, _ = f.Write(hdr[:])
	_, _ = f.Write(data)
	_ = f.Close()
	_ = os.Rename(tmp, path)
	go prunePosterCache()
}

func prunePosterCache() {
	posterCacheMu.Lock()
	defer posterCacheMu.Unlock()
	var files []struct {
		p  string
		sz int64
		mt time.Time
	}
	var total int64
	filepath.WalkDir(posterCacheDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(p), ".bin") {
			return nil
		}
		if info, e := d.Info(); e == nil {
			files = append(files, struct {
				p  string
				sz int64
				mt time.Time
			}{p, info.Size(), info.ModTime()})
			total += info.Size()
		}
		return nil
	})
	if total <= posterCacheMax || posterCacheMax <= 0 {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mt.Before(files[j].mt) })
	for _, f := range files {
		if total <= posterCacheMax {
			break
		}
		_ = os.Remove(f.p)
		total -= f.sz
	}
}
