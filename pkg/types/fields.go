package types

import (
	"net/http"
	"sort"
	"strings"
)

// Field 单个头部字段
type Field struct {
	Name  string
	Value string
}

// IsPseudo 是否为伪头部（以 ":" 开头，如 ":status"）
func (f Field) IsPseudo() bool {
	return strings.HasPrefix(f.Name, ":")
}

// Fields 有序的头部字段集合
//
// 保留插入顺序与重复字段，名称比较不区分大小写。
// 零值可直接使用。
type Fields []Field

// FieldsOf 按 name, value, name, value... 构造 Fields
//
// 奇数个参数时最后一个被忽略。
func FieldsOf(kv ...string) Fields {
	f := make(Fields, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f = append(f, Field{Name: kv[i], Value: kv[i+1]})
	}
	return f
}

// FieldsFromHeader 从 http.Header 转换，按名称排序以保证确定性
func FieldsFromHeader(h http.Header) Fields {
	f := make(Fields, 0, len(h))
	for _, name := range sortedKeys(h) {
		for _, v := range h[name] {
			f = append(f, Field{Name: name, Value: v})
		}
	}
	return f
}

// Add 追加字段
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Set 替换同名字段；不存在则追加
func (f *Fields) Set(name, value string) {
	f.Del(name)
	f.Add(name, value)
}

// Get 返回第一个同名字段的值
func (f Fields) Get(name string) string {
	for _, field := range f {
		if strings.EqualFold(field.Name, name) {
			return field.Value
		}
	}
	return ""
}

// Has 是否存在同名字段
func (f Fields) Has(name string) bool {
	for _, field := range f {
		if strings.EqualFold(field.Name, name) {
			return true
		}
	}
	return false
}

// Values 返回所有同名字段的值
func (f Fields) Values(name string) []string {
	var values []string
	for _, field := range f {
		if strings.EqualFold(field.Name, name) {
			values = append(values, field.Value)
		}
	}
	return values
}

// Del 删除所有同名字段
func (f *Fields) Del(name string) {
	kept := (*f)[:0]
	for _, field := range *f {
		if !strings.EqualFold(field.Name, name) {
			kept = append(kept, field)
		}
	}
	*f = kept
}

// Len 字段数量
func (f Fields) Len() int {
	return len(f)
}

// Clone 深拷贝
//
// nil 克隆后仍为 nil。
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

// Regular 返回去掉伪头部后的字段
func (f Fields) Regular() Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		if !field.IsPseudo() {
			out = append(out, field)
		}
	}
	return out
}

// HasPseudo 是否包含伪头部
func (f Fields) HasPseudo() bool {
	for _, field := range f {
		if field.IsPseudo() {
			return true
		}
	}
	return false
}

// Header 转换为 http.Header，跳过伪头部
func (f Fields) Header() http.Header {
	h := make(http.Header, len(f))
	for _, field := range f {
		if field.IsPseudo() {
			continue
		}
		h.Add(field.Name, field.Value)
	}
	return h
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
