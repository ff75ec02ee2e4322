package cookiejar

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cookie is one stored cookie. A zero ExpiryTime marks a session cookie
// with no Max-Age/Expires attribute; it is never swept on Apply.
type Cookie struct {
	Name       string
	Value      string
	ExpiryTime time.Time
}

// Jar is a per-host, file-backed cookie store. It is not safe to share a
// single Jar across hosts that should not see each other's cookies; callers
// construct one Jar per host.
type Jar struct {
	path string

	mu      sync.Mutex
	cookies map[string]Cookie
}

var expiresLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 GMT",
	"Mon, 02-Jan-2006 15:04:05 GMT",
}

// Load reads a previously saved jar file. A missing file is not an error;
// it yields an empty jar.
func Load(path string) (*Jar, error) {
	j := &Jar{path: path, cookies: make(map[string]Cookie)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		expirySeconds, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		c := Cookie{Name: fields[0], Value: fields[1]}
		if expirySeconds != 0 {
			c.ExpiryTime = time.Unix(expirySeconds, 0)
		}
		j.cookies[c.Name] = c
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return j, nil
}

// Save writes the jar to disk, one "name value expiry_seconds" line per
// cookie. Session cookies (zero ExpiryTime) are written with 0.
func (j *Jar) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range j.cookies {
		expirySeconds := int64(0)
		if !c.ExpiryTime.IsZero() {
			expirySeconds = c.ExpiryTime.Unix()
		}
		if _, err := fmt.Fprintf(w, "%s %s %d\n", c.Name, c.Value, expirySeconds); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Update absorbs every Set-Cookie header on resp, overwriting any existing
// cookie of the same name. Malformed headers are skipped, not fatal.
func (j *Jar) Update(resp *http.Response) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, header := range resp.Header.Values("Set-Cookie") {
		c, ok := parseSetCookie(header)
		if !ok {
			continue
		}
		j.cookies[c.Name] = c
	}
}

// parseSetCookie extracts name, value, and expiry from one Set-Cookie
// header value.
func parseSetCookie(header string) (Cookie, bool) {
	parts := strings.Split(header, ";")
	namePair := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(namePair, '=')
	if eq < 0 {
		return Cookie{}, false
	}
	c := Cookie{Name: namePair[:eq], Value: namePair[eq+1:]}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		attrEq := strings.IndexByte(attr, '=')
		if attrEq < 0 {
			continue
		}
		attrName := strings.ToLower(attr[:attrEq])
		attrValue := attr[attrEq+1:]

		switch attrName {
		case "max-age":
			maxAge, err := strconv.Atoi(attrValue)
			if err != nil {
				continue
			}
			c.ExpiryTime = time.Now().Add(time.Duration(maxAge) * time.Second)
		case "expires":
			for _, layout := range expiresLayouts {
				if t, err := time.Parse(layout, attrValue); err == nil {
					c.ExpiryTime = t.UTC()
					break
				}
			}
		}
	}
	return c, true
}

// Apply sweeps expired cookies, then sets a single combined Cookie header
// on req (or removes it entirely if the jar is empty).
func (j *Jar) Apply(req *http.Request) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	for name, c := range j.cookies {
		if !c.ExpiryTime.IsZero() && !now.Before(c.ExpiryTime) {
			delete(j.cookies, name)
		}
	}

	req.Header.Del("Cookie")
	if len(j.cookies) == 0 {
		return
	}

	var b strings.Builder
	first := true
	for _, c := range j.cookies {
		if !first {
			b.WriteString("; ")
		}
		first = false
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	req.Header.Set("Cookie", b.String())
}

// Get returns the named cookie, or the zero Cookie if it isn't present.
func (j *Jar) Get(name string) Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cookies[name]
}
