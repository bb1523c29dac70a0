package netx

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"videoBot/config"
)

func isLocalHost(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	return strings.ToLower(host) == "localhost"
}

// NewHTTPClient создает клиент для походов к платформам: хосты из NO_PROXY
// и локальные адреса идут напрямую, остальные через SOCKS5 из настроек.
// Поле Transport.Proxy не используем, чтобы не путать SOCKS с HTTP-прокси.
func NewHTTPClient(proxy *config.ProxyConfig) *http.Client {
	baseDialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	tr := &http.Transport{
		Proxy:             nil,
		DisableKeepAlives: false,
		ForceAttemptHTTP2: true,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
	}

	tr.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
		host, _, _ := net.SplitHostPort(address)
		if isLocalHost(host) || !proxy.ShouldProxy(host) {
			return baseDialer.DialContext(ctx, network, address)
		}
		// SOCKS5 с удаленным резолвом: hostname не резолвим на своей стороне
		socksAddr := strings.TrimPrefix(strings.TrimPrefix(proxy.ProxyURL, "socks5h://"), "socks5://")
		d, err := xproxy.SOCKS5("tcp", socksAddr, nil, baseDialer)
		if err != nil {
			return nil, err
		}
		return d.Dial(network, address)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}
}
