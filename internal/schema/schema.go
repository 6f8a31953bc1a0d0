// Package schema loads the two protocol-description files for the Warren
// service and resolves the message and method descriptors the client
// needs for dynamic payload encoding.
package schema

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"github.com/jhump/protoreflect/desc"
	"github.com/shhac/warren/internal/errs"
	"google.golang.org/protobuf/reflect/protoreflect"
)

//go:embed protodef/schema.proto protodef/service.proto
var bundled embed.FS

// Logical file names used in import statements and as override keys.
const (
	SchemaFile  = "schema.proto"
	ServiceFile = "service.proto"
)

// Fully-qualified names resolved from the compiled files.
const (
	collectionSchemaName = "warren.v1.CollectionSchema"
	fieldSchemaName      = "warren.v1.FieldSchema"
	serviceName          = "warren.v1.WarrenService"
)

// Paths optionally overrides the bundled schema files with on-disk
// copies. An empty path selects the bundled default.
type Paths struct {
	Schema  string
	Service string
}

// Types holds the resolved descriptors. Immutable for the client's
// lifetime once loaded.
type Types struct {
	CollectionSchema *desc.MessageDescriptor
	FieldSchema      *desc.MessageDescriptor
	Service          *desc.ServiceDescriptor

	methods map[string]*desc.MethodDescriptor
}

// Method returns the descriptor for the named service method.
func (t *Types) Method(name string) (*desc.MethodDescriptor, bool) {
	m, ok := t.methods[name]
	return m, ok
}

// Load compiles the two schema files and resolves the descriptors.
// Construction is intentionally blocking: a missing file or an
// unresolvable type name is fatal to client construction, so the client
// can never exist in a half-initialized state.
func Load(paths Paths) (*Types, error) {
	overrides := map[string]string{}
	if paths.Schema != "" {
		overrides[SchemaFile] = paths.Schema
	}
	if paths.Service != "" {
		overrides[ServiceFile] = paths.Service
	}

	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: func(path string) (io.ReadCloser, error) {
				if override, ok := overrides[path]; ok {
					return os.Open(override)
				}
				return bundled.Open("protodef/" + path)
			},
		}),
	}

	files, err := compiler.Compile(context.Background(), SchemaFile, ServiceFile)
	if err != nil {
		return nil, errs.Config("schema_paths", err)
	}

	collection, err := findMessage(files, collectionSchemaName)
	if err != nil {
		return nil, err
	}
	field, err := findMessage(files, fieldSchemaName)
	if err != nil {
		return nil, err
	}

	svc, err := findService(files, serviceName)
	if err != nil {
		return nil, err
	}

	methods := make(map[string]*desc.MethodDescriptor, len(svc.GetMethods()))
	for _, m := range svc.GetMethods() {
		methods[m.GetName()] = m
	}

	if err := validateHandshake(methods); err != nil {
		return nil, err
	}

	return &Types{
		CollectionSchema: collection,
		FieldSchema:      field,
		Service:          svc,
		methods:          methods,
	}, nil
}

// validateHandshake checks that the Connect request can carry the
// client_info payload the handshake encodes. An override that compiles
// but reshapes the request is a configuration error at load time, not a
// failure on first use.
func validateHandshake(methods map[string]*desc.MethodDescriptor) error {
	m, ok := methods["Connect"]
	if !ok {
		return errs.Config("schema_paths", fmt.Errorf("method Connect not found in %s", serviceName))
	}
	fd := m.GetInputType().FindFieldByName("client_info")
	if fd == nil || fd.GetMessageType() == nil {
		return errs.Config("schema_paths",
			fmt.Errorf("%s lacks a client_info message field", m.GetInputType().GetFullyQualifiedName()))
	}
	return nil
}

// findDescriptor searches every compiled file for the fully-qualified name.
func findDescriptor(files linker.Files, name protoreflect.FullName) (protoreflect.Descriptor, error) {
	for _, f := range files {
		if d := f.FindDescriptorByName(name); d != nil {
			return d, nil
		}
	}
	return nil, errs.Config("schema_paths", fmt.Errorf("type %s not found in loaded schema", name))
}

func findMessage(files linker.Files, name protoreflect.FullName) (*desc.MessageDescriptor, error) {
	d, err := findDescriptor(files, name)
	if err != nil {
		return nil, err
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, errs.Config("schema_paths", fmt.Errorf("%s is not a message", name))
	}
	wrapped, err := desc.WrapMessage(md)
	if err != nil {
		return nil, errs.Config("schema_paths", err)
	}
	return wrapped, nil
}

func findService(files linker.Files, name protoreflect.FullName) (*desc.ServiceDescriptor, error) {
	d, err := findDescriptor(files, name)
	if err != nil {
		return nil, err
	}
	sd, ok := d.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, errs.Config("schema_paths", fmt.Errorf("%s is not a service", name))
	}
	wrapped, err := desc.WrapService(sd)
	if err != nil {
		return nil, errs.Config("schema_paths", err)
	}
	return wrapped, nil
}
