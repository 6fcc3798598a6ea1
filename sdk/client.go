package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/pkg/jwt"
	"github.com/tidwall/gjson"
)

// Client is the SDK client for the chat HTTP API
type Client struct {
	baseURL    string
	httpClient *client.Client
	tokens     jwt.TokenStore
	strategy   string
	jar        http.CookieJar
	timeout    time.Duration
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenStore sets where the bearer token is read from
func WithTokenStore(tokens jwt.TokenStore) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithAuthStrategy selects bearer token or cookie authentication
func WithAuthStrategy(strategy string) ClientOption {
	return func(c *Client) {
		c.strategy = strategy
	}
}

// WithCookieJar sets the jar used under the cookie strategy
func WithCookieJar(jar http.CookieJar) ClientOption {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithTimeout sets the read and write timeout of the default Hertz client
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a new SDK client. An empty baseURL is accepted; every
// request then fails with errcode.ErrConfigMissing before touching the network.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		strategy: constant.AuthStrategyToken,
		tokens:   jwt.NewMemoryTokenStore(),
		timeout:  30 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		clientOpts := []config.ClientOption{
			client.WithDialTimeout(10 * time.Second),
			client.WithClientReadTimeout(c.timeout),
			client.WithWriteTimeout(c.timeout),
		}
		if strings.HasPrefix(c.baseURL, "https://") {
			// netpoll has no TLS support
			clientOpts = append(clientOpts,
				client.WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
				client.WithDialer(standard.NewDialer()),
			)
		}
		httpClient, err := client.NewClient(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = httpClient
	}

	if c.strategy == constant.AuthStrategyCookie {
		// the server owns the credential; never read a bearer token
		c.tokens = jwt.CookieTokenStore{}
		if c.jar == nil {
			jar, err := cookiejar.New(nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create cookie jar: %w", err)
			}
			c.jar = jar
		}
	}

	return c, nil
}

// BaseURL returns the API root every path is relative to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CookieJar returns the jar used under the cookie strategy, or nil
func (c *Client) CookieJar() http.CookieJar {
	return c.jar
}

// Response is a decoded API response
type Response struct {
	Status int
	IsJSON bool
	Body   []byte
}

// Result returns the parsed JSON body
func (r *Response) Result() gjson.Result {
	if !r.IsJSON {
		return gjson.Result{}
	}
	return gjson.ParseBytes(r.Body)
}

// Data returns the "data" member, or the whole body when there is none
func (r *Response) Data() gjson.Result {
	res := r.Result()
	if d := res.Get("data"); d.Exists() {
		return d
	}
	return res
}

// Text returns the body as text
func (r *Response) Text() string {
	return string(r.Body)
}

// Message returns the server supplied "message" member
func (r *Response) Message() string {
	return r.Result().Get("message").String()
}

// request makes a JSON request
func (c *Client) request(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	return c.do(ctx, method, path, "application/json", payload)
}

// do sends one request and turns non-2xx responses into coded errors
func (c *Client) do(ctx context.Context, method, path, contentType string, payload []byte) (*Response, error) {
	if c.baseURL == "" {
		return nil, errcode.ErrConfigMissing
	}
	reqURL := c.baseURL + path

	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(method)
	req.SetRequestURI(reqURL)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	if err := c.authorize(ctx, req, reqURL); err != nil {
		return nil, err
	}

	if payload != nil {
		req.SetBody(payload)
	}

	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		log.CtxError(ctx, "api request error: method=%s, path=%s, error=%v", method, path, err)
		return nil, errcode.ErrRequestFailed.Wrap(err)
	}

	c.storeCookies(resp, reqURL)

	out := &Response{
		Status: resp.StatusCode(),
		IsJSON: strings.Contains(string(resp.Header.ContentType()), "application/json"),
		Body:   append([]byte(nil), resp.Body()...),
	}

	if out.Status < 200 || out.Status >= 300 {
		log.CtxWarn(ctx, "api request failed: method=%s, path=%s, status=%d", method, path, out.Status)
		return nil, responseError(out)
	}
	return out, nil
}

// responseError builds the uniform error for a non-2xx response
func responseError(resp *Response) *errcode.Error {
	msg := ""
	if resp.IsJSON {
		msg = resp.Message()
	} else {
		msg = strings.TrimSpace(resp.Text())
	}

	base := errcode.ErrRequestFailed
	if resp.Status == consts.StatusUnauthorized {
		base = errcode.ErrUnauthorized
	}
	if msg == "" {
		msg = errcode.ErrRequestFailed.Msg
	}
	return base.WithMsg(msg).WithStatus(resp.Status)
}

// authorize attaches the credential for the configured strategy
func (c *Client) authorize(ctx context.Context, req *protocol.Request, reqURL string) error {
	if c.strategy == constant.AuthStrategyCookie {
		if c.jar == nil {
			return nil
		}
		u, err := url.Parse(reqURL)
		if err != nil {
			return errcode.ErrInvalidParam.Wrap(err)
		}
		for _, ck := range c.jar.Cookies(u) {
			req.Header.SetCookie(ck.Name, ck.Value)
		}
		return nil
	}

	token, err := c.tokens.Get(ctx)
	if err != nil {
		log.CtxWarn(ctx, "read token failed: %v", err)
		return nil
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// storeCookies records Set-Cookie headers into the jar
func (c *Client) storeCookies(resp *protocol.Response, reqURL string) {
	if c.jar == nil {
		return
	}
	header := http.Header{}
	resp.Header.VisitAllCookie(func(_, value []byte) {
		header.Add("Set-Cookie", string(value))
	})
	if len(header) == 0 {
		return
	}
	u, err := url.Parse(reqURL)
	if err != nil {
		return
	}
	c.jar.SetCookies(u, (&http.Response{Header: header}).Cookies())
}

// get makes a GET request with query parameters
func (c *Client) get(ctx context.Context, path string, params map[string]string) (*Response, error) {
	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		path += "?" + query.Encode()
	}
	return c.request(ctx, consts.MethodGet, path, nil)
}

// post makes a POST request
func (c *Client) post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.request(ctx, consts.MethodPost, path, body)
}

// postMultipart posts an already encoded multipart body
func (c *Client) postMultipart(ctx context.Context, path, contentType string, body *bytes.Buffer) (*Response, error) {
	return c.do(ctx, consts.MethodPost, path, contentType, body.Bytes())
}
