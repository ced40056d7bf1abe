package schema

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/PortoLucas1/zerobus-station/internal/config"
)

// FieldError reports a record body that does not match the table schema.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

var messageNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Codec encodes JSON record bodies into protobuf wire bytes for one table's
// message. Built once at configuration load; safe for concurrent use.
type Codec struct {
	desc   protoreflect.MessageDescriptor
	fields []codecField
}

type codecField struct {
	name string
	typ  string
	fd   protoreflect.FieldDescriptor
}

// NewCodec synthesizes a message descriptor from the table's field list and
// returns a codec bound to it.
func NewCodec(tbl config.TableConfig) (*Codec, error) {
	if !messageNameRe.MatchString(tbl.MessageName) {
		return nil, fmt.Errorf("invalid message name %q", tbl.MessageName)
	}
	fieldProtos := make([]*descriptorpb.FieldDescriptorProto, 0, len(tbl.Fields))
	for i, f := range tbl.Fields {
		if !messageNameRe.MatchString(f.Name) {
			return nil, fmt.Errorf("invalid field name %q", f.Name)
		}
		fieldProtos = append(fieldProtos, &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(f.Name),
			JsonName: proto.String(f.Name),
			Number:   proto.Int32(int32(i + 1)),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     protoType(f.Type).Enum(),
		})
	}
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(strings.ToLower(tbl.MessageName) + ".proto"),
		Package: proto.String("zerobus.station.tables"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name:  proto.String(tbl.MessageName),
			Field: fieldProtos,
		}},
	}
	fd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		return nil, fmt.Errorf("build descriptor for %s: %w", tbl.MessageName, err)
	}
	md := fd.Messages().ByName(protoreflect.Name(tbl.MessageName))
	if md == nil {
		return nil, fmt.Errorf("descriptor for %s not found after build", tbl.MessageName)
	}
	fields := make([]codecField, 0, len(tbl.Fields))
	for _, f := range tbl.Fields {
		fields = append(fields, codecField{
			name: f.Name,
			typ:  f.Type,
			fd:   md.Fields().ByName(protoreflect.Name(f.Name)),
		})
	}
	return &Codec{desc: md, fields: fields}, nil
}

// Descriptor returns the synthesized message descriptor.
func (c *Codec) Descriptor() protoreflect.MessageDescriptor { return c.desc }

// Encode validates body against the schema and returns protobuf wire bytes.
// Every configured field is required; extra JSON fields are ignored.
func (c *Codec) Encode(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, &FieldError{Field: "$", Reason: "body is not valid JSON"}
	}
	msg := dynamicpb.NewMessage(c.desc)
	for _, f := range c.fields {
		v := gjson.GetBytes(body, escapePath(f.name))
		if !v.Exists() {
			return nil, &FieldError{Field: f.name, Reason: "missing"}
		}
		val, err := fieldValue(f, v)
		if err != nil {
			return nil, err
		}
		msg.Set(f.fd, val)
	}
	return proto.Marshal(msg)
}

func fieldValue(f codecField, v gjson.Result) (protoreflect.Value, error) {
	switch f.typ {
	case "int32":
		n, err := integral(f, v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return protoreflect.Value{}, &FieldError{Field: f.name, Reason: "out of int32 range"}
		}
		return protoreflect.ValueOfInt32(int32(n)), nil
	case "int64":
		n, err := integral(f, v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(n), nil
	case "float":
		if v.Type != gjson.Number {
			return protoreflect.Value{}, &FieldError{Field: f.name, Reason: "expected number"}
		}
		return protoreflect.ValueOfFloat32(float32(v.Float())), nil
	case "double":
		if v.Type != gjson.Number {
			return protoreflect.Value{}, &FieldError{Field: f.name, Reason: "expected number"}
		}
		return protoreflect.ValueOfFloat64(v.Float()), nil
	case "bool":
		if !v.IsBool() {
			return protoreflect.Value{}, &FieldError{Field: f.name, Reason: "expected boolean"}
		}
		return protoreflect.ValueOfBool(v.Bool()), nil
	default:
		// string and the string fallback for unknown types
		if v.Type == gjson.JSON {
			return protoreflect.Value{}, &FieldError{Field: f.name, Reason: "expected scalar"}
		}
		return protoreflect.ValueOfString(v.String()), nil
	}
}

func integral(f codecField, v gjson.Result) (int64, error) {
	if v.Type != gjson.Number {
		return 0, &FieldError{Field: f.name, Reason: "expected integer"}
	}
	if v.Float() != math.Trunc(v.Float()) {
		return 0, &FieldError{Field: f.name, Reason: "expected integer, got fraction"}
	}
	return v.Int(), nil
}

func protoType(t string) descriptorpb.FieldDescriptorProto_Type {
	switch t {
	case "int32":
		return descriptorpb.FieldDescriptorProto_TYPE_INT32
	case "int64":
		return descriptorpb.FieldDescriptorProto_TYPE_INT64
	case "float":
		return descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	case "double":
		return descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	case "bool":
		return descriptorpb.FieldDescriptorProto_TYPE_BOOL
	default:
		return descriptorpb.FieldDescriptorProto_TYPE_STRING
	}
}

// escapePath escapes gjson path syntax so field names are matched literally.
func escapePath(name string) string {
	if !strings.ContainsAny(name, ".*?\\") {
		return name
	}
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '.', '*', '?', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
