package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubClient struct{}

func (stubClient) Complete(ctx context.Context, req Request) (string, error) { return "", nil }
func (stubClient) Stream(ctx context.Context, req Request) (EventStream, error) {
	return nil, nil
}

type stubEndpoint struct{}

func (stubEndpoint) StreamSQL(ctx context.Context, req SQLRequest) (ChunkStream, error) {
	return nil, nil
}
func (stubEndpoint) StreamExplain(ctx context.Context, sql string) (ChunkStream, error) {
	return nil, nil
}

func TestLLM_Backends_Selection(t *testing.T) {
	t.Parallel()

	chatOnly := Backends{Chat: stubClient{}}
	require.NoError(t, chatOnly.Validate())
	require.Equal(t, BackendGeneralChat, chatOnly.ForSQL().Kind)
	require.NotNil(t, chatOnly.ForSQL().Chat)
	_, ok := chatOnly.ForExplain()
	require.False(t, ok)

	full := Backends{Chat: stubClient{}, SQL: stubEndpoint{}, Explain: stubEndpoint{}}
	sql := full.ForSQL()
	require.Equal(t, BackendSpecializedSQL, sql.Kind)
	require.NotNil(t, sql.SQL)
	require.Nil(t, sql.Chat)
	explain, ok := full.ForExplain()
	require.True(t, ok)
	require.Equal(t, BackendSpecializedExplain, explain.Kind)

	require.ErrorContains(t, Backends{}.Validate(), "chat client is required")
}

func TestLLM_BackendKind_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "general_chat", BackendGeneralChat.String())
	require.Equal(t, "specialized_sql", BackendSpecializedSQL.String())
	require.Equal(t, "specialized_explain", BackendSpecializedExplain.String())
}
