/*
Package templating renders storefront sections. A section template is executed
against its resolved settings and block instances with one of two engines:

  - "gotemplate": html/template with a function map for arithmetic, logic,
    colors and content formatting.
  - "django": pongo2, for Liquid-like sources such as
    {{ section.settings.heading }}.

Rendering is best-effort. References to settings that do not exist are
reported as diagnostics and render as empty strings, and execution errors keep
the output produced so far. Only a template that cannot be parsed, or an
unknown engine, is a hard failure (ErrEngineFailure).

Style blocks are lifted out of the markup and returned separately as CSS,
together with the section's own stylesheet.
*/
package templating
