package models

import "context"

// RequestInfo is caller metadata captured at the HTTP edge for query logging
type RequestInfo struct {
	IPAddress string
	UserAgent string
	Referer   string
	Country   string
	City      string
	Region    string
	Latitude  *float64
	Longitude *float64
}

type requestInfoKey struct{}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the zero value when ctx carries no request info
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
