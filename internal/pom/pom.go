// Package pom renders the project object model published alongside the jars
// and maintains the artifact-level maven-metadata.xml index.
package pom

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"git.home.luguber.info/inful/relpub/internal/config"
	"git.home.luguber.info/inful/relpub/internal/coordinate"
)

const (
	pomNamespace      = "http://maven.apache.org/POM/4.0.0"
	xsiNamespace      = "http://www.w3.org/2001/XMLSchema-instance"
	pomSchemaLocation = "http://maven.apache.org/POM/4.0.0 https://maven.apache.org/xsd/maven-4.0.0.xsd"
)

// Project is the subset of the Maven POM model relpub publishes.
type Project struct {
	XMLName         xml.Name    `xml:"project"`
	Xmlns           string      `xml:"xmlns,attr"`
	XmlnsXSI        string      `xml:"xmlns:xsi,attr"`
	SchemaLocation  string      `xml:"xsi:schemaLocation,attr"`
	ModelVersion    string      `xml:"modelVersion"`
	GroupID         string      `xml:"groupId"`
	ArtifactID      string      `xml:"artifactId"`
	Version         string      `xml:"version"`
	Packaging       string      `xml:"packaging,omitempty"`
	Name            string      `xml:"name,omitempty"`
	Description     string      `xml:"description,omitempty"`
	URL             string      `xml:"url,omitempty"`
	Licenses        *Licenses   `xml:"licenses,omitempty"`
	Developers      *Developers `xml:"developers,omitempty"`
	SCM             *SCM        `xml:"scm,omitempty"`
	IssueManagement *IssueMgmt  `xml:"issueManagement,omitempty"`
	Properties      *Properties `xml:"properties,omitempty"`
}

// Licenses and Developers are pointers so empty lists leave no element behind.
type Licenses struct {
	License []License `xml:"license"`
}

type Developers struct {
	Developer []Developer `xml:"developer"`
}

type License struct {
	Name string `xml:"name"`
	URL  string `xml:"url,omitempty"`
}

type Developer struct {
	ID    string `xml:"id,omitempty"`
	Name  string `xml:"name,omitempty"`
	Email string `xml:"email,omitempty"`
}

type SCM struct {
	Connection          string `xml:"connection,omitempty"`
	DeveloperConnection string `xml:"developerConnection,omitempty"`
	URL                 string `xml:"url,omitempty"`
}

type IssueMgmt struct {
	System string `xml:"system,omitempty"`
	URL    string `xml:"url,omitempty"`
}

// Properties carries build provenance.
type Properties struct {
	SourceRevision string `xml:"relpub.sourceRevision,omitempty"`
}

// Build assembles the POM model for a coordinate.
func Build(coord coordinate.Coordinate, project config.ProjectConfig, revision string) Project {
	p := Project{
		Xmlns:          pomNamespace,
		XmlnsXSI:       xsiNamespace,
		SchemaLocation: pomSchemaLocation,
		ModelVersion:   "4.0.0",
		GroupID:        coord.GroupID,
		ArtifactID:     coord.ArtifactID,
		Version:        coord.Version,
		Packaging:      project.Packaging,
		Name:           project.Name,
		Description:    project.Description,
		URL:            project.URL,
	}
	if len(project.Licenses) > 0 {
		p.Licenses = &Licenses{}
		for _, l := range project.Licenses {
			p.Licenses.License = append(p.Licenses.License, License{Name: l.Name, URL: l.URL})
		}
	}
	if len(project.Developers) > 0 {
		p.Developers = &Developers{}
		for _, d := range project.Developers {
			p.Developers.Developer = append(p.Developers.Developer, Developer{ID: d.ID, Name: d.Name, Email: d.Email})
		}
	}
	if project.SCM != (config.SCMConfig{}) {
		p.SCM = &SCM{
			Connection:          project.SCM.Connection,
			DeveloperConnection: project.SCM.DeveloperConnection,
			URL:                 project.SCM.URL,
		}
	}
	if project.IssueManagement != (config.IssueConfig{}) {
		p.IssueManagement = &IssueMgmt{System: project.IssueManagement.System, URL: project.IssueManagement.URL}
	}
	if revision != "" {
		p.Properties = &Properties{SourceRevision: revision}
	}
	return p
}

// Render serializes a POM with the XML declaration and two-space indentation.
func Render(p Project) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("render pom: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Generate is Build followed by Render.
func Generate(coord coordinate.Coordinate, project config.ProjectConfig, revision string) ([]byte, error) {
	return Render(Build(coord, project, revision))
}
