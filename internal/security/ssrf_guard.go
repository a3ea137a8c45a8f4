// Package security はLodestone取得とアセット保存に使う防御機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedURL はURLが取得対象として許可されていない場合に返される。
var ErrBlockedURL = errors.New("許可されていないURLです")

// maxRedirects はLodestoneのリダイレクトを追跡する上限。
const maxRedirects = 5

// blockedPrefixes はホストがIPリテラルの場合に拒否するアドレス範囲。
// 名前解決後のアドレスはsafeurlのDialerが検証する。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Guard はLodestoneと画像ホストへのアクセスを許可ホストに限定する。
type Guard struct {
	allowedHosts []string
}

// NewSSRFGuard はGuardを生成する。
// allowedHostsが空でない場合、ValidateURLはそのホストかサブドメインのみを許可する。
func NewSSRFGuard(allowedHosts ...string) *Guard {
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Guard{allowedHosts: hosts}
}

// NewSafeClient はsafeurlのDialerで接続先IPを検証するHTTPクライアントを返す。
// リダイレクト先もValidateURLで検証する。
func (g *Guard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(cfg).Client
	client.CheckRedirect = g.checkRedirect
	return client
}

func (g *Guard) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("リダイレクトが%d回を超えました", maxRedirects)
	}
	return g.ValidateURL(req.URL.String())
}

// ValidateURL は名前解決を伴わずにURLを検証する。
func (g *Guard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: URLが空です", ErrBlockedURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: URLの解析に失敗しました: %v", ErrBlockedURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: スキーム %q", ErrBlockedURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: ホストがありません", ErrBlockedURL)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: ホスト %s", ErrBlockedURL, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("%w: アドレス %s", ErrBlockedURL, addr)
		}
		if len(g.allowedHosts) > 0 {
			return fmt.Errorf("%w: ホスト %s", ErrBlockedURL, host)
		}
		return nil
	}

	if !g.hostAllowed(host) {
		return fmt.Errorf("%w: ホスト %s", ErrBlockedURL, host)
	}
	return nil
}

func (g *Guard) hostAllowed(host string) bool {
	if len(g.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range g.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
