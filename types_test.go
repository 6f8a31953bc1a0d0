package warren

import (
	"testing"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/shhac/warren/internal/errs"
	"github.com/shhac/warren/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchemaClient(t *testing.T) *Client {
	t.Helper()
	types, err := schema.Load(schema.Paths{})
	require.NoError(t, err)
	return &Client{types: types}
}

func TestEncodeCollectionSchema(t *testing.T) {
	c := newSchemaClient(t)

	in := CollectionSchema{
		Name:               "articles",
		Description:        "news articles with embeddings",
		EnableDynamicField: true,
		Fields: []FieldSchema{
			{
				Name:       "id",
				DataType:   DataTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:       "embedding",
				DataType:   DataTypeFloatVector,
				TypeParams: map[string]string{"dim": "768"},
			},
			{
				Name:       "title",
				DataType:   DataTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
		},
	}

	encoded, err := c.encodeCollectionSchema(in)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	// The wire bytes must decode under the schema descriptor into the
	// same logical schema.
	msg := dynamic.NewMessage(c.types.CollectionSchema)
	require.NoError(t, msg.Unmarshal(encoded))

	out := decodeCollectionSchema(msg)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Description, out.Description)
	assert.Equal(t, in.EnableDynamicField, out.EnableDynamicField)
	require.Len(t, out.Fields, 3)
	assert.Equal(t, in.Fields[0].Name, out.Fields[0].Name)
	assert.True(t, out.Fields[0].PrimaryKey)
	assert.True(t, out.Fields[0].AutoID)
	assert.Equal(t, DataTypeFloatVector, out.Fields[1].DataType)
	assert.Equal(t, map[string]string{"dim": "768"}, out.Fields[1].TypeParams)
	assert.Equal(t, map[string]string{"max_length": "512"}, out.Fields[2].TypeParams)
}

func TestEncodeSchemaAgainstReshapedTypes(t *testing.T) {
	// The type names resolve but their fields do not match what the
	// encoder writes; that is a ProtocolError, not a panic.
	types, err := schema.Load(schema.Paths{Schema: "testdata/reshaped_schema.proto"})
	require.NoError(t, err)
	c := &Client{types: types}

	_, err = c.encodeCollectionSchema(CollectionSchema{Name: "articles"})
	require.Error(t, err)
	assert.True(t, errs.IsProtocol(err))
}

func TestCheckStatusBareStatus(t *testing.T) {
	c := newSchemaClient(t)
	m, ok := c.types.Method("DropCollection")
	require.True(t, ok)

	// DropCollection's response is a bare Status.
	st := dynamic.NewMessage(m.GetOutputType())
	require.NoError(t, checkStatus(st))

	st.SetFieldByName("code", int32(65535))
	st.SetFieldByName("reason", "collection not found")
	err := checkStatus(st)
	require.Error(t, err)
	var serverErr *errs.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, int32(65535), serverErr.Code)
	assert.Contains(t, err.Error(), "collection not found")
}

func TestCheckStatusEmbedded(t *testing.T) {
	c := newSchemaClient(t)
	m, ok := c.types.Method("GetVersion")
	require.True(t, ok)

	resp := dynamic.NewMessage(m.GetOutputType())
	require.NoError(t, checkStatus(resp), "absent status is success")

	stField := resp.GetMessageDescriptor().FindFieldByName("status")
	st := dynamic.NewMessage(stField.GetMessageType())
	st.SetFieldByName("code", int32(7))
	st.SetFieldByName("reason", "permission denied")
	resp.SetFieldByName("status", st)

	err := checkStatus(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
