package config

import (
	"os"
	"strings"
)

// ProxyConfig содержит настройки прокси для исходящих запросов
type ProxyConfig struct {
	UseProxy bool
	ProxyURL string
	NoProxy  []string
}

// LoadProxyConfig загружает конфигурацию прокси из переменных окружения
func LoadProxyConfig() *ProxyConfig {
	useProxy := strings.ToLower(os.Getenv("USE_PROXY")) == "true"
	proxyURL := os.Getenv("PROXY_URL")
	if proxyURL == "" {
		proxyURL = "socks5h://127.0.0.1:1080"
	}

	noProxy := os.Getenv("NO_PROXY")
	if noProxy == "" {
		noProxy = "localhost,127.0.0.1,172.16.0.0/12,192.168.0.0/16"
	}

	return &ProxyConfig{
		UseProxy: useProxy,
		ProxyURL: proxyURL,
		NoProxy:  strings.Split(noProxy, ","),
	}
}

// GetProxyArgs возвращает аргументы прокси для yt-dlp
func (p *ProxyConfig) GetProxyArgs() []string {
	if !p.UseProxy {
		return []string{}
	}

	return []string{"--proxy", p.ProxyURL}
}

// ShouldProxy проверяет, нужно ли проксировать указанный хост
func (p *ProxyConfig) ShouldProxy(host string) bool {
	if !p.UseProxy {
		return false
	}

	for _, noProxy := range p.NoProxy {
		noProxy = strings.TrimSpace(noProxy)
		if strings.Contains(host, noProxy) {
			return false
		}
	}

	return true
}
