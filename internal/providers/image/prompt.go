package image

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted face, changed identity, incorrect anatomy, extra limbs, text artefacts, watermark"

// PromptOptions are the knobs a generation run exposes.
type PromptOptions struct {
	Style      string
	Color      string
	Amazon     bool
	Custom     string
	References int
}

// StyleLabel turns a style folder name such as "pashmina_silk" into "Pashmina Silk".
func StyleLabel(style string) string {
	style = strings.TrimSpace(style)
	style = strings.NewReplacer("_", " ", "-", " ").Replace(style)
	style = strings.Join(strings.Fields(style), " ")
	if style == "" {
		return ""
	}
	return cases.Title(language.Und).String(style)
}

// BuildCompositePrompt converts run options into a natural language instruction
// for image editing models. Every reference image shows the hijab style to
// reproduce on a newly composed model.
func BuildCompositePrompt(opts PromptOptions) string {
	var lines []string

	label := StyleLabel(opts.Style)
	if label == "" {
		label = "reference"
	}
	lines = append(lines, "Create a photorealistic fashion photograph of a young woman model.")
	lines = append(lines,
		fmt.Sprintf("She wears the %s hijab style shown in the reference images, matching drape, fabric texture and how it frames the face.", label))
	lines = append(lines, "Do not copy the faces from the reference images; only the hijab and outfit styling carry over.")

	if opts.References > 1 {
		lines = append(lines, fmt.Sprintf("There are %d style references; blend their shared characteristics.", opts.References))
	}

	if color := strings.TrimSpace(opts.Color); color != "" {
		lines = append(lines, fmt.Sprintf("The hijab colour must be %s regardless of the colour in the style references.", color))
	}

	if opts.Amazon {
		lines = append(lines,
			"Use a plain pure white studio backdrop with soft even lighting, centred full upper-body framing, suitable for an e-commerce product listing.")
	} else {
		lines = append(lines,
			"Place her in a soft, natural lifestyle setting with flattering daylight and shallow depth of field.")
	}

	if custom := strings.TrimSpace(opts.Custom); custom != "" {
		lines = append(lines, fmt.Sprintf("Additional direction: %s.", strings.TrimRight(custom, ".")))
	}

	lines = append(lines, "Render with high quality lighting, sharp focus, and clean post-processing, ready for Instagram.")
	return strings.Join(lines, "\n")
}

// AspectRatioSize maps an aspect ratio string to the DashScope supported size token.
func AspectRatioSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4":
		return "1140*1472"
	case "9:16":
		return "928*1664"
	case "4:5":
		return "1104*1380"
	default:
		return "1328*1328"
	}
}
