package http

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient は外部API（Scryfall, CubeCobra）呼び出し用のHTTPクライアントを作成します。
//
// 設定:
//   - Proxy: HTTP_PROXY などの環境変数に従う
//   - Dialer: 接続タイムアウト5秒、KeepAlive 30秒
//   - MaxIdleConnsPerHost: カタログ呼び出しはレートリミッターで直列化されるため少数で足りる
//   - Client.Timeout: リクエスト全体のタイムアウト（呼び出し元から渡される）
//
// 注意: http.DefaultClient にはタイムアウトがないため使用しないこと。
func NewHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
