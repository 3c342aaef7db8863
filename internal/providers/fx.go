package providers

import (
	"github.com/smallbiznis/mediavault/internal/providers/email"
	"github.com/smallbiznis/mediavault/internal/providers/identity"
	"github.com/smallbiznis/mediavault/internal/providers/pdf"
	"github.com/smallbiznis/mediavault/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	identity.Module,
	pdf.Module,
	slack.Module,
)
