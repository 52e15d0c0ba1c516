// Package httpclient builds and sends the HTTP requests issued by each
// iteration.
//
// [NewClient] returns a client whose transport is sized for the VU pool.
// [RequestBuilder] fixes the method, target URL and static headers of one
// endpoint and optionally injects credentials from an [AuthProvider].
// [Send] executes a request, drains the body so keep-alive connections are
// reused, and reports status, timing and byte counts:
//
//	builder, err := httpclient.NewRequestBuilder(http.MethodPost, base+"/api/attendance",
//		map[string]string{"Content-Type": "application/json"})
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, payload)
//	resp, err := httpclient.Send(client, req)
package httpclient
