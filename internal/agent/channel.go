package agent

import "context"

// 请求来源的渠道名称，写入对话记录。
const (
	ChannelREST  = "rest"
	ChannelChat  = "chat"
	ChannelAgent = "agent"
	ChannelCLI   = "cli"
)

type channelKey struct{}

// WithChannel 在上下文中标记请求来源。
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

// ChannelFrom 读取请求来源，缺省为 rest。
func ChannelFrom(ctx context.Context) string {
	if channel, ok := ctx.Value(channelKey{}).(string); ok && channel != "" {
		return channel
	}
	return ChannelREST
}
