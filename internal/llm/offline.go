package llm

import "context"

// OfflinePrefix starts every offline reply.
const OfflinePrefix = "[MOCK ANSWER] "

// OfflineClient echoes the last user message. It lets the service run
// without a model; judge replies are not JSON and take the fallback path.
type OfflineClient struct{}

func (OfflineClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return OfflinePrefix + lastUser(messages), nil
}
