package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://procurement.schemas.local/"

// AnswerSchemaName 问答响应 schema 名称
const AnswerSchemaName = "answer_envelope"

// ValidationError schema 校验失败
type ValidationError struct {
	Schema string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema %s 校验失败: %v", e.Schema, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Details 字段级错误明细，形如 "/payload/currency: length must be >= 3"
func (e *ValidationError) Details() []string {
	var ve *jsonschema.ValidationError
	if !errors.As(e.Err, &ve) {
		return []string{e.Err.Error()}
	}
	details := make([]string, 0)
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			details = append(details, loc+": "+v.Message)
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	return details
}

// Validator 编译后的 schema
type Validator struct {
	name     string
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// Compile 编译 schema 文档
func Compile(name string, doc map[string]any) (*Validator, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("序列化 schema %s 失败: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	url := schemaBaseURL + name + ".schema.json"
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("加载 schema %s 失败: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("编译 schema %s 失败: %w", name, err)
	}
	return &Validator{name: name, raw: raw, compiled: compiled}, nil
}

// Name schema 名称
func (v *Validator) Name() string {
	return v.name
}

// Raw 原始 schema 文档
func (v *Validator) Raw() json.RawMessage {
	return v.raw
}

// Validate 校验任意 Go 值，先经 JSON 往返得到规范化实例
func (v *Validator) Validate(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &ValidationError{Schema: v.name, Err: err}
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return &ValidationError{Schema: v.name, Err: err}
	}
	if err := v.compiled.Validate(instance); err != nil {
		return &ValidationError{Schema: v.name, Err: err}
	}
	return nil
}

type actionEntry struct {
	wrapper *Validator
	payload *Validator
}

// Registry 动作 schema 注册表
type Registry struct {
	actions map[string]*actionEntry
	answer  *Validator
}

// NewRegistry 生成并编译全部动作与问答 schema
func NewRegistry() (*Registry, error) {
	r := &Registry{actions: make(map[string]*actionEntry, len(payloadTypes))}

	answerDoc, err := For[AnswerEnvelope]()
	if err != nil {
		return nil, err
	}
	if r.answer, err = Compile(AnswerSchemaName, answerDoc); err != nil {
		return nil, err
	}

	for _, actionType := range ActionTypes {
		t, ok := payloadTypes[actionType]
		if !ok {
			return nil, fmt.Errorf("动作 %s 未定义负载结构", actionType)
		}
		payloadDoc, err := Generate(t)
		if err != nil {
			return nil, fmt.Errorf("生成 %s 负载 schema 失败: %w", actionType, err)
		}
		wrapperDoc, err := wrapperSchema(actionType, payloadDoc)
		if err != nil {
			return nil, err
		}

		entry := &actionEntry{}
		if entry.payload, err = Compile(actionType+"_payload", payloadDoc); err != nil {
			return nil, err
		}
		if entry.wrapper, err = Compile(actionType, wrapperDoc); err != nil {
			return nil, err
		}
		r.actions[actionType] = entry
	}
	return r, nil
}

// wrapperSchema 以通用信封为骨架，替换 payload 并固定 action_type
func wrapperSchema(actionType string, payloadDoc map[string]any) (map[string]any, error) {
	doc, err := For[ActionEnvelope]()
	if err != nil {
		return nil, err
	}
	props := doc["properties"].(map[string]any)
	props["action_type"] = map[string]any{"type": "string", "enum": []any{actionType}}
	props["payload"] = payloadDoc
	return doc, nil
}

// ActionTypes 已注册动作，按字母序
func (r *Registry) ActionTypes() []string {
	out := make([]string, 0, len(r.actions))
	for t := range r.actions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Has 是否注册了该动作
func (r *Registry) Has(actionType string) bool {
	_, ok := r.actions[actionType]
	return ok
}

func (r *Registry) entry(actionType string) (*actionEntry, error) {
	e, ok := r.actions[actionType]
	if !ok {
		return nil, fmt.Errorf("未知的动作类型: %q (可选: %s)", actionType, strings.Join(ActionTypes, ", "))
	}
	return e, nil
}

// ActionSchema 动作信封 schema
func (r *Registry) ActionSchema(actionType string) (json.RawMessage, error) {
	e, err := r.entry(actionType)
	if err != nil {
		return nil, err
	}
	return e.wrapper.Raw(), nil
}

// PayloadSchema 动作负载 schema
func (r *Registry) PayloadSchema(actionType string) (json.RawMessage, error) {
	e, err := r.entry(actionType)
	if err != nil {
		return nil, err
	}
	return e.payload.Raw(), nil
}

// AnswerSchema 问答信封 schema
func (r *Registry) AnswerSchema() json.RawMessage {
	return r.answer.Raw()
}

// ValidateAction 校验完整动作信封
func (r *Registry) ValidateAction(env *ActionEnvelope) error {
	e, err := r.entry(env.ActionType)
	if err != nil {
		return err
	}
	return e.wrapper.Validate(env)
}

// ValidatePayload 仅校验负载
func (r *Registry) ValidatePayload(actionType string, payload any) error {
	e, err := r.entry(actionType)
	if err != nil {
		return err
	}
	return e.payload.Validate(payload)
}

// ValidateAnswer 校验问答信封
func (r *Registry) ValidateAnswer(env *AnswerEnvelope) error {
	return r.answer.Validate(env)
}
