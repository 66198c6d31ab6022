package epub

import (
	"encoding/xml"
)

const (
	opfNamespace       = "http://www.idpf.org/2007/opf"
	dcNamespace        = "http://purl.org/dc/elements/1.1/"
	renditionPrefix    = "rendition: http://www.idpf.org/vocab/rendition/#"
	containerNamespace = "urn:oasis:names:tc:opendocument:xmlns:container"
	ncxNamespace       = "http://www.daisy.org/z3986/2005/ncx/"
)

// Package is the OPF package document.
type Package struct {
	XMLName          xml.Name        `xml:"package"`
	Xmlns            string          `xml:"xmlns,attr"`
	Version          string          `xml:"version,attr"`
	UniqueIdentifier string          `xml:"unique-identifier,attr"`
	Prefix           string          `xml:"prefix,attr"`
	Metadata         PackageMetadata `xml:"metadata"`
	Manifest         PackageManifest `xml:"manifest"`
	Spine            PackageSpine    `xml:"spine"`
}

type PackageMetadata struct {
	XmlnsDC    string        `xml:"xmlns:dc,attr"`
	Identifier DCIdentifier  `xml:"dc:identifier"`
	Title      string        `xml:"dc:title"`
	Language   string        `xml:"dc:language"`
	Meta       []PackageMeta `xml:"meta"`
}

type DCIdentifier struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

// PackageMeta covers both EPUB 3 property metas and the EPUB 2 name/content form.
type PackageMeta struct {
	Property string `xml:"property,attr,omitempty"`
	Name     string `xml:"name,attr,omitempty"`
	Content  string `xml:"content,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type PackageManifest struct {
	Items []Item `xml:"item"`
}

// Item is one manifest entry.
type Item struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type PackageSpine struct {
	Toc      string    `xml:"toc,attr"`
	ItemRefs []ItemRef `xml:"itemref"`
}

type ItemRef struct {
	IDRef      string `xml:"idref,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type container struct {
	XMLName   xml.Name   `xml:"container"`
	Xmlns     string     `xml:"xmlns,attr"`
	Version   string     `xml:"version,attr"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

type ncx struct {
	XMLName  xml.Name   `xml:"ncx"`
	Xmlns    string     `xml:"xmlns,attr"`
	Version  string     `xml:"version,attr"`
	Head     []ncxMeta  `xml:"head>meta"`
	DocTitle string     `xml:"docTitle>text"`
	NavMap   []navPoint `xml:"navMap>navPoint"`
}

type ncxMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type navPoint struct {
	ID        string `xml:"id,attr"`
	PlayOrder int    `xml:"playOrder,attr"`
	Label     string `xml:"navLabel>text"`
	Content   struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
}

func marshalXML(v any) ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
