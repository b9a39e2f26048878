package core

import "context"

type clientKey struct{}

// Client identifies who started a run over HTTP.
type Client struct {
	IP        string
	UserAgent string
}

// WithClient returns a context carrying c. Runs started with it record the
// client in their history params.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the client stored by WithClient.
func ClientFromContext(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok
}

func withClient(ctx context.Context, params map[string]any) map[string]any {
	c, ok := ClientFromContext(ctx)
	if !ok {
		return params
	}
	if c.IP != "" {
		params["client_ip"] = c.IP
	}
	if c.UserAgent != "" {
		params["user_agent"] = c.UserAgent
	}
	return params
}
