package generation

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Content types of the generated documents.
const (
	ContentTypePDF = "application/pdf"
	ContentTypeXML = "application/xml"
)

// Artifact is one decoded document ready to be written or downloaded.
type Artifact struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Result is the outcome of a successful generation cycle.
type Result struct {
	InvoiceID string   `json:"invoiceId"`
	PDF       Artifact `json:"pdf"`
	XML       Artifact `json:"xml"`
}

var fileNameReplacer = strings.NewReplacer("/", "-", `\`, "-", ":", "-")

// FileStem turns an invoice number into something safe to use in a file
// name.
func FileStem(invoiceNumber string) string {
	stem := fileNameReplacer.Replace(strings.TrimSpace(invoiceNumber))
	if stem == "" {
		return "invoice"
	}
	return stem
}

// DecodeArtifacts base64-decodes a download payload into named artifacts.
func DecodeArtifacts(invoiceNumber string, payload DownloadResponse) (Artifact, Artifact, error) {
	pdf, err := base64.StdEncoding.DecodeString(payload.PDF)
	if err != nil {
		return Artifact{}, Artifact{}, fmt.Errorf("decode pdf: %w", err)
	}
	xml, err := base64.StdEncoding.DecodeString(payload.XML)
	if err != nil {
		return Artifact{}, Artifact{}, fmt.Errorf("decode xml: %w", err)
	}
	stem := FileStem(invoiceNumber)
	return Artifact{FileName: "Faktura-" + stem + ".pdf", ContentType: ContentTypePDF, Data: pdf},
		Artifact{FileName: "eFaktura-" + stem + ".xml", ContentType: ContentTypeXML, Data: xml},
		nil
}
