package xmltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveURI(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"absolute ref wins", "http://a.com/x/y.xsd", "http://b.com/z.xml", "http://b.com/z.xml"},
		{"sibling", "http://a.com/x/y.xsd", "lab.xml", "http://a.com/x/lab.xml"},
		{"parent traversal", "http://a.com/a/b/c.xsd", "../elts/us-gaap.xsd", "http://a.com/a/elts/us-gaap.xsd"},
		{"dot slash", "http://a.com/x/inst.htm", "./ext.xsd", "http://a.com/x/ext.xsd"},
		{"local sibling", "/cache/host/a/inst.xml", "ext.xsd", "/cache/host/a/ext.xsd"},
		{"local parent", "/cache/host/a/b/inst.xml", "../lab.xml", "/cache/host/a/lab.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURI(tt.base, tt.ref))
		})
	}
}

func TestEqualURI(t *testing.T) {
	assert.True(t, EqualURI("http://abc.de/2020/x.xsd", "https://abc.de/2020/x.xsd"))
	assert.True(t, EqualURI("http://abc.de/a/b.xsd", "abc.de/a/b.xsd"))
	assert.False(t, EqualURI("http://abc.de/a/b.xsd", "http://abc.de/a/c.xsd"))
}
