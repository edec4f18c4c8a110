package wechat

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"sort"
)

var errNotXML = errors.New("not_wechat_xml")

// parseXML decodes WeChat Pay's flat <xml><k>v</k>...</xml> document into
// a string map. Nested elements are not part of the protocol.
func parseXML(raw []byte) (map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	fields := make(map[string]string)

	depth := 0
	var key string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 && t.Name.Local != "xml" {
				return nil, errNotXML
			}
			if depth == 2 {
				key = t.Name.Local
			}
		case xml.CharData:
			if depth == 2 && key != "" {
				fields[key] += string(t)
			}
		case xml.EndElement:
			depth--
			key = ""
		}
	}
	if len(fields) == 0 {
		return nil, errNotXML
	}
	return fields, nil
}

// encodeXML renders a string map as the flat CDATA document WeChat Pay
// expects, with keys ordered for stable request bodies.
func encodeXML(fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString("<xml>")
	for _, key := range keys {
		b.WriteString("<")
		b.WriteString(key)
		b.WriteString("><![CDATA[")
		b.WriteString(fields[key])
		b.WriteString("]]></")
		b.WriteString(key)
		b.WriteString(">")
	}
	b.WriteString("</xml>")
	return b.Bytes()
}
